package cache

import "context"

// Tiered layers a fast front store over a persistent back store.
// Reads fall through to the back store and promote hits; writes go to both.
type Tiered struct {
	front Store
	back  Store
}

// NewTiered combines front and back into one store
func NewTiered(front, back Store) *Tiered {
	return &Tiered{front: front, back: back}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok, err := t.front.Get(ctx, key); err == nil && ok {
		return v, true, nil
	}

	v, ok, err := t.back.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	_ = t.front.Put(ctx, key, v)
	return v, true, nil
}

func (t *Tiered) Put(ctx context.Context, key string, value []byte) error {
	if err := t.back.Put(ctx, key, value); err != nil {
		return err
	}
	return t.front.Put(ctx, key, value)
}

// Clear empties both tiers and reports the back store's count
func (t *Tiered) Clear(ctx context.Context) (int, error) {
	if _, err := Clear(ctx, t.front); err != nil {
		return 0, err
	}
	return Clear(ctx, t.back)
}

func (t *Tiered) Count(ctx context.Context) (int, error) {
	return Count(ctx, t.back)
}
