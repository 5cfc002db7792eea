package brain

import (
	"context"
	"sync"

	"github.com/okdaichi/townvoice/internal/protocol"
)

// MockGenerator returns scripted replies for tests and keyless local runs.
type MockGenerator struct {
	mu        sync.Mutex
	Reply     Reply
	Err       error
	Calls     int
	Questions []string
	// Script overrides Reply per question when set.
	Script map[string]Reply
}

func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		Reply:  Reply{Text: "モック回答です。", Emotion: protocol.EmotionNeutral},
		Script: make(map[string]Reply),
	}
}

func (m *MockGenerator) Generate(_ context.Context, question, _ string) (Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.Questions = append(m.Questions, question)
	if m.Err != nil {
		return Reply{}, m.Err
	}
	if r, ok := m.Script[question]; ok {
		return r, nil
	}
	return m.Reply, nil
}
