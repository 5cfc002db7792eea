// Package brain generates persona answers for audience questions.
package brain

import (
	"context"

	"github.com/okdaichi/townvoice/internal/protocol"
)

// Reply is a generated answer: display text plus the emotion driving the
// avatar expression.
type Reply struct {
	Text    string
	Emotion protocol.Emotion
}

// Generator produces a persona reply for a question. Implementations must
// be safe for concurrent use; the dispatcher may run several generations at
// once under its concurrency gate.
type Generator interface {
	Generate(ctx context.Context, question, author string) (Reply, error)
}

// Retriever supplies background passages folded into the prompt. The
// default is NoopRetriever; deployments with a knowledge base plug in their
// own.
type Retriever interface {
	Retrieve(ctx context.Context, question string) ([]string, error)
}

// NoopRetriever returns no context passages.
type NoopRetriever struct{}

func (NoopRetriever) Retrieve(context.Context, string) ([]string, error) { return nil, nil }
