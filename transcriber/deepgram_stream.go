package transcriber

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"nhooyr.io/websocket"
)

const listenEndpoint = "wss://api.deepgram.com/v1/listen"

type streamSessionConfig struct {
	SampleRate int
	Channels   int
	Language   string
	Model      string
}

// listenURL builds the /v1/listen query. Interim results are always
// requested; the session layer decides which partials reach the caller.
func (cfg streamSessionConfig) listenURL() string {
	model := cfg.Model
	if model == "" {
		model = defaultDeepgramModel
	}
	q := url.Values{}
	q.Set("model", model)
	q.Set("encoding", "linear16")
	q.Set("interim_results", "true")
	if cfg.SampleRate > 0 {
		q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	}
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	return listenEndpoint + "?" + q.Encode()
}

// listenResult is the subset of a Deepgram Results message the session
// layer consumes.
type listenResult struct {
	Type         string `json:"type"`
	IsFinal      bool   `json:"is_final"`
	SpeechFinal  bool   `json:"speech_final"`
	FromFinalize bool   `json:"from_finalize"`
	Channel      struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type listenConn struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

func (d *Deepgram) startStream(ctx context.Context, cfg streamSessionConfig) (rawStreamSession, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.apiKey)

	streamCtx, cancel := context.WithCancel(ctx)
	conn, _, err := websocket.Dial(streamCtx, cfg.listenURL(), &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		cancel()
		return nil, err
	}
	return &listenConn{conn: conn, ctx: streamCtx, cancel: cancel}, nil
}

func (s *listenConn) Send(pcm []byte) error {
	return s.conn.Write(s.ctx, websocket.MessageBinary, pcm)
}

// CloseSend asks the recognizer to flush buffered audio; the flushed
// words come back in a Results message with from_finalize set.
func (s *listenConn) CloseSend() error {
	return s.conn.Write(s.ctx, websocket.MessageText, []byte(`{"type":"Finalize"}`))
}

// Recv returns the next Results message. Housekeeping frames such as
// Metadata carry no transcript and are skipped.
func (s *listenConn) Recv() (streamUpdate, error) {
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			return streamUpdate{}, err
		}

		var res listenResult
		if err := json.Unmarshal(data, &res); err != nil {
			return streamUpdate{}, err
		}
		if res.Type != "" && res.Type != "Results" {
			continue
		}

		transcript := ""
		if len(res.Channel.Alternatives) > 0 {
			transcript = res.Channel.Alternatives[0].Transcript
		}
		return streamUpdate{
			Transcript:   strings.TrimSpace(transcript),
			IsFinal:      res.IsFinal,
			SpeechFinal:  res.SpeechFinal,
			FromFinalize: res.FromFinalize,
		}, nil
	}
}

func (s *listenConn) Close() error {
	s.cancel()
	return s.conn.Close(websocket.StatusNormalClosure, "")
}
