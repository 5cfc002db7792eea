package synth

import (
	"context"
	"sync"
)

// MockSynthesizer returns canned audio for tests and keyless local runs.
type MockSynthesizer struct {
	mu    sync.Mutex
	Audio []byte
	Err   error
	Calls int
	Texts []string
}

func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{Audio: []byte("mock-mp3-audio")}
}

func (m *MockSynthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.Texts = append(m.Texts, text)
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]byte, len(m.Audio))
	copy(out, m.Audio)
	return out, nil
}
