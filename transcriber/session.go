package transcriber

type SessionConfig struct {
	Model    string // provider model name; empty picks the provider default
	Language string
}

// Update is one recognizer event. Final updates carry a committed
// utterance; non-final updates carry the current in-flight hypothesis
// and are superseded by the next update.
type Update struct {
	Text  string
	Final bool
}

type StreamStats struct {
	ConnectMs    float64
	SentChunks   int
	SentKB       float64
	RecvMessages int
	RecvFinal    int
	RecvInterim  int
	CommitEvents int
	FinalizeMs   float64
	TotalMs      float64
	AudioS       float64
}

type SessionResult struct {
	Text     string // all committed utterances joined with spaces
	HasText  bool
	NoSpeech bool
	Stream   *StreamStats // non-nil for stream sessions
}

// Session is a live recognition stream. Callers must drain Updates
// until it is closed; Close closes it after the server flush.
type Session interface {
	Feed(pcm []byte)
	Updates() <-chan Update
	Close() (SessionResult, error)
}
