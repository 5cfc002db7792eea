// Package synth turns answer text into playable speech audio.
package synth

import "context"

// Synthesizer produces encoded audio bytes for a piece of text. Implementations
// must be safe for concurrent use.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
