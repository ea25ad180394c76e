package llm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// attemptWithProvisioning runs fn once. When the model is missing it pulls the
// model and runs fn exactly one more time; every other failure returns at once.
func attemptWithProvisioning[T any](ctx context.Context, c *Client, model string, fn func() (T, error)) (T, error) {
	var zero T

	result, err := fn()
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, ErrModelNotFound) {
		return zero, err
	}

	c.logger.Info("model not found, pulling", zap.String("model", model))
	if pullErr := c.Pull(ctx, model); pullErr != nil {
		return zero, fmt.Errorf("%w: %s (pull failed: %v)", ErrModelNotFound, model, pullErr)
	}

	result, err = fn()
	if err != nil {
		return zero, fmt.Errorf("model %s after pull: %w", model, err)
	}
	return result, nil
}
