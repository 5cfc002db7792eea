// Package protocol defines the typed payloads exchanged with the
// presentation layer. The pipeline emits zero or more progress events per
// request followed by exactly one terminal answer or error event.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeQuestionAccepted MessageType = "question_accepted"
	TypeProgress         MessageType = "progress"
	TypeAnswer           MessageType = "answer"
	TypeSystemEvent      MessageType = "system_event"
	TypeErrorEvent       MessageType = "error_event"
	TypeClientSubmit     MessageType = "client_submit"
)

var ErrUnsupportedType = errors.New("unsupported message type")

// Emotion tags an answer for avatar rendering and speech styling.
type Emotion string

const (
	EmotionNeutral Emotion = "Neutral"
	EmotionJoy     Emotion = "Joy"
	EmotionAngry   Emotion = "Angry"
	EmotionSorrow  Emotion = "Sorrow"
	EmotionFun     Emotion = "Fun"
)

// ParseEmotion maps free-form model output onto a known tag. Unknown values
// fall back to Neutral so a malformed generation never breaks rendering.
func ParseEmotion(s string) Emotion {
	switch Emotion(s) {
	case EmotionJoy, EmotionAngry, EmotionSorrow, EmotionFun, EmotionNeutral:
		return Emotion(s)
	default:
		return EmotionNeutral
	}
}

// AnswerSource records how an answer was produced.
type AnswerSource string

const (
	SourceCacheExact   AnswerSource = "cache_exact"
	SourceCacheSimilar AnswerSource = "cache_similar"
	SourceGenerated    AnswerSource = "generated"
)

type Envelope struct {
	Type MessageType `json:"type"`
}

// QuestionAccepted acknowledges an enqueued request.
type QuestionAccepted struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id"`
	Position  int         `json:"position"`
}

// Progress reports a non-terminal pipeline stage for one request.
type Progress struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id"`
	Stage     string      `json:"stage"`
	Message   string      `json:"message"`
}

// Answer is the terminal success event for one request.
type Answer struct {
	Type              MessageType  `json:"type"`
	RequestID         string       `json:"request_id"`
	Question          string       `json:"question"`
	Author            string       `json:"author"`
	AnswerText        string       `json:"answer_text"`
	Emotion           Emotion      `json:"emotion"`
	AudioBase64       string       `json:"audio_base64,omitempty"`
	Source            AnswerSource `json:"source"`
	BootstrapGreeting bool         `json:"bootstrap_greeting,omitempty"`
}

// SystemEvent carries out-of-band notices (queue reset, feed status).
type SystemEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

// ErrorEvent is the terminal failure event for one request.
type ErrorEvent struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail"`
}

// ClientSubmit is a question submitted over the websocket instead of the
// REST endpoint.
type ClientSubmit struct {
	Type   MessageType `json:"type"`
	Text   string      `json:"text"`
	Author string      `json:"author"`
}

// ParseClientMessage decodes an inbound websocket payload.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientSubmit:
		var msg ClientSubmit
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Text == "" {
			return nil, errors.New("invalid client_submit: empty text")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// MessageTypeOf reports the protocol type of an outbound event value.
func MessageTypeOf(v any) (MessageType, bool) {
	switch m := v.(type) {
	case QuestionAccepted:
		return m.Type, true
	case Progress:
		return m.Type, true
	case Answer:
		return m.Type, true
	case SystemEvent:
		return m.Type, true
	case ErrorEvent:
		return m.Type, true
	case ClientSubmit:
		return m.Type, true
	default:
		return "", false
	}
}
