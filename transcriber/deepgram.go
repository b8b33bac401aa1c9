package transcriber

import (
	"context"

	"glean/encoder"
)

const defaultDeepgramModel = "nova-3"

type Deepgram struct {
	apiKey string
	model  string
	lang   string
}

func NewDeepgram(apiKey, model string) *Deepgram {
	if model == "" {
		model = defaultDeepgramModel
	}
	return &Deepgram{apiKey: apiKey, model: model}
}

func (d *Deepgram) Name() string { return "deepgram" }

func (d *Deepgram) SetLanguage(lang string) { d.lang = lang }

func (d *Deepgram) GetLanguage() string { return d.lang }

func (d *Deepgram) NewSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	if cfg.Language != "" {
		d.SetLanguage(cfg.Language)
	}
	model := cfg.Model
	if model == "" {
		model = d.model
	}

	streamCfg := streamSessionConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
		Language:   d.lang,
		Model:      model,
	}
	return newStreamSession(func() (rawStreamSession, error) {
		return d.startStream(ctx, streamCfg)
	}), nil
}
