// Package transcriber turns raw PCM audio into text over a streaming
// speech-to-text connection.
package transcriber

import (
	"context"
	"fmt"
)

type Transcriber interface {
	Name() string
	SetLanguage(lang string)
	GetLanguage() string
	NewSession(ctx context.Context, cfg SessionConfig) (Session, error)
}

// New returns the streaming transcriber for the given credentials.
// An empty key is an error; the caller decides whether to run in
// recording-only mode instead.
func New(apiKey, model string) (Transcriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("set DEEPGRAM_API_KEY to enable live transcription")
	}
	return NewDeepgram(apiKey, model), nil
}
