// Package llmtest provides a fake Ollama endpoint for tests.
package llmtest

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode"
)

// Judgment is the fake answer to a generate call
type Judgment struct {
	Text     string
	Logprob  float64
	Logprobs bool // Include logprobs in the response
}

// Server is an httptest server speaking the subset of the Ollama API the
// client uses. Embeddings are deterministic bag-of-words vectors, so texts
// sharing words are close.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	dimension int
	models    map[string]bool
	pullable  bool
	calls     map[string]int
	failures  map[string]int
	judge     func(prompt string) Judgment
}

// New starts a server with the given embedding dimension and installed models.
// It is closed when the test ends.
func New(t testing.TB, dimension int, models ...string) *Server {
	t.Helper()
	s := &Server{
		dimension: dimension,
		models:    make(map[string]bool),
		pullable:  true,
		calls:     make(map[string]int),
		failures:  make(map[string]int),
		judge: func(string) Judgment {
			return Judgment{Text: "yes", Logprob: math.Log(0.9), Logprobs: true}
		},
	}
	for _, m := range models {
		s.models[m] = true
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/embed", s.handleEmbed)
	mux.HandleFunc("/api/generate", s.handleGenerate)
	mux.HandleFunc("/api/show", s.handleShow)
	mux.HandleFunc("/api/pull", s.handlePull)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Calls returns how many requests reached endpoint (e.g. "/api/embed")
func (s *Server) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

// SetDimension changes the dimension of subsequent embeddings
func (s *Server) SetDimension(d int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = d
}

// RemoveModel uninstalls a model
func (s *Server) RemoveModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.models, model)
}

// HasModel reports whether a model is installed
func (s *Server) HasModel(model string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.models[model]
}

// SetPullable controls whether pulls succeed
func (s *Server) SetPullable(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pullable = ok
}

// FailWith makes endpoint answer status to every request
func (s *Server) FailWith(endpoint string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[endpoint] = status
}

// SetJudge replaces the generate handler's answer
func (s *Server) SetJudge(judge func(prompt string) Judgment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.judge = judge
}

// Vector returns the embedding the server produces for text at dimension d
func Vector(text string, d int) []float32 {
	v := make([]float32, d)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(d)]++
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// begin counts the call and reports a forced failure or missing model
func (s *Server) begin(w http.ResponseWriter, endpoint, model string) bool {
	s.mu.Lock()
	s.calls[endpoint]++
	status, fail := s.failures[endpoint]
	installed := s.models[model]
	s.mu.Unlock()

	if fail {
		writeJSON(w, status, map[string]string{"error": "forced failure"})
		return false
	}
	if model != "" && !installed {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("model %q not found, try pulling it first", model),
		})
		return false
	}
	return true
}

func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
		Input string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if !s.begin(w, "/api/embed", req.Model) {
		return
	}

	s.mu.Lock()
	d := s.dimension
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"model":      req.Model,
		"embeddings": [][]float32{Vector(req.Input, d)},
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model    string `json:"model"`
		Prompt   string `json:"prompt"`
		Logprobs bool   `json:"logprobs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if !s.begin(w, "/api/generate", req.Model) {
		return
	}

	s.mu.Lock()
	judge := s.judge
	s.mu.Unlock()
	j := judge(req.Prompt)

	resp := map[string]any{"model": req.Model, "response": j.Text, "done": true}
	if req.Logprobs && j.Logprobs {
		resp["logprobs"] = []map[string]any{{"token": j.Text, "logprob": j.Logprob}}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleShow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if !s.begin(w, "/api/show", req.Model) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"details": map[string]string{"format": "gguf"}})
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if !s.begin(w, "/api/pull", "") {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pullable {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "pull model manifest: file does not exist"})
		return
	}
	s.models[req.Model] = true
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
