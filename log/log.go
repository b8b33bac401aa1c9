// Package log writes the session's diagnostics and transcript logs
// under a per-user directory.
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog        zerolog.Logger
	diagFile       *os.File
	transcriptFile *os.File
	logMu          sync.Mutex
	logReady       bool
	pid            int
	dir            string
)

// ResolveDir picks the log directory: the --log-dir flag wins, then
// GLEAN_LOG_PATH, then the platform default.
func ResolveDir(flagPath string) (string, error) {
	if flagPath != "" {
		return absolutize(flagPath)
	}
	if envPath := os.Getenv("GLEAN_LOG_PATH"); envPath != "" {
		return absolutize(envPath)
	}
	return getDefaultDir()
}

// absolutize anchors a relative path at the current working directory.
func absolutize(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	return nil
}

func openLog(name string) (*os.File, error) {
	return os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error
	diagFile, err = openLog("diagnostics_log.txt")
	if err != nil {
		return err
	}
	transcriptFile, err = openLog("transcript_log.txt")
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if transcriptFile != nil {
		transcriptFile.Close()
		transcriptFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) { Info(fmt.Sprintf(format, args...)) }

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) { Warn(fmt.Sprintf(format, args...)) }

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) { Error(fmt.Sprintf(format, args...)) }

// Transcript appends one finalized utterance to the transcript log file.
func Transcript(text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	line := fmt.Sprintf("%s\t[%d]\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, text)
	transcriptFile.WriteString(line)
}

func SessionStart(engine, model, device string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("engine", engine).
		Str("model", model).
		Str("device", device).
		Msg("session_start")
}

func SessionEnd(lines, findings, exchanges int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("lines", lines).
		Int("findings", findings).
		Int("exchanges", exchanges).
		Msg("session_end")
}

// AnalysisCycle records one pass of the periodic extraction loop.
func AnalysisCycle(source string, actions, questions, decisions, topics int, durMs float64) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("source", source).
		Int("actions", actions).
		Int("questions", questions).
		Int("decisions", decisions).
		Int("topics", topics).
		Float64("total_ms", durMs).
		Msg("analysis_cycle")
}

// Worker records completion of a background task (chat, interview, context).
func Worker(kind string, durMs float64, err error) {
	if !logReady {
		return
	}
	ev := diagLog.Info().Str("kind", kind).Float64("total_ms", durMs)
	if err != nil {
		ev = diagLog.Error().Str("kind", kind).Float64("total_ms", durMs).Err(err)
	}
	ev.Msg("worker_done")
}

type StreamMetricsData struct {
	ConnectMs    float64
	FinalizeMs   float64
	TotalMs      float64
	AudioS       float64
	SentChunks   int
	SentKB       float64
	RecvMessages int
	RecvFinal    int
}

func StreamMetrics(m StreamMetricsData) {
	if !logReady {
		return
	}
	diagLog.Info().
		Float64("connect_ms", m.ConnectMs).
		Float64("finalize_ms", m.FinalizeMs).
		Float64("total_ms", m.TotalMs).
		Float64("audio_s", m.AudioS).
		Int("sent_chunks", m.SentChunks).
		Float64("sent_kb", m.SentKB).
		Int("recv_messages", m.RecvMessages).
		Int("recv_final", m.RecvFinal).
		Msg("stream_transcription")
}
