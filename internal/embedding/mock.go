package embedding

import (
	"context"
	"crypto/sha256"
	"sync"
)

// MockEmbedder is a deterministic in-process embedder for tests and local
// dev. Identical texts map to identical vectors; vectors can be pinned per
// text to steer similarity in tests.
type MockEmbedder struct {
	mu     sync.Mutex
	pinned map[string][]float32
	Err    error
	Calls  int
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{pinned: make(map[string][]float32)}
}

// Pin fixes the vector returned for an exact text.
func (m *MockEmbedder) Pin(text string, vec []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinned[text] = vec
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	if vec, ok := m.pinned[text]; ok {
		out := make([]float32, len(vec))
		copy(out, vec)
		return out, nil
	}
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, 8)
	for i := range vec {
		vec[i] = float32(sum[i])/255 + 0.01
	}
	return vec, nil
}
