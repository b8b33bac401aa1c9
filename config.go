package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the resolved session configuration. Values are layered:
// flags override the config file, the file overrides environment
// variables, and environment variables override built-in defaults.
// Credentials come from the environment only.
type Config struct {
	Device      string   `toml:"device"`
	ASRModel    string   `toml:"asr_model"`
	LLMModel    string   `toml:"llm_model"`
	BaseURL     string   `toml:"base_url"`
	Prompt      string   `toml:"prompt"`
	ChatPrompt  string   `toml:"chat_prompt"`
	OutDir      string   `toml:"out_dir"`
	AudioFormat string   `toml:"audio_format"`
	Context     []string `toml:"context"`
	NoBeep      bool     `toml:"no_beep"`
	FakeAudio   string   `toml:"fake_audio"`

	APIKey string `toml:"-"`
	ASRKey string `toml:"-"`
}

func defaultConfigPath(home string) string {
	return filepath.Join(home, ".config", "glean", "config.toml")
}

// loadConfig reads the TOML config file and fills environment-backed
// fields. An explicit path must parse; the default path is optional.
func loadConfig(path string) (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		OutDir:      filepath.Join(home, "recordings"),
		AudioFormat: "flac",
	}

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath(home)
	}
	if _, err := os.Stat(path); err == nil || explicit {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.OutDir = expandHome(cfg.OutDir, home)
	cfg.Prompt = expandHome(cfg.Prompt, home)
	cfg.ChatPrompt = expandHome(cfg.ChatPrompt, home)
	cfg.FakeAudio = expandHome(cfg.FakeAudio, home)

	cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.ASRKey = os.Getenv("DEEPGRAM_API_KEY")
	if cfg.LLMModel == "" {
		cfg.LLMModel = os.Getenv("LLM_MODEL")
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = os.Getenv("OPENAI_MODEL")
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = "gpt-4o-mini"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if env := firstEnv("CONTEXT_PATHS", "CONTEXT"); env != "" {
		for _, p := range strings.Split(env, ":") {
			if p != "" {
				cfg.Context = append(cfg.Context, p)
			}
		}
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.AudioFormat {
	case "flac", "wav":
		return nil
	default:
		return fmt.Errorf("unknown audio format %q (use flac or wav)", c.AudioFormat)
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func expandHome(path, home string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return path
}

// newSessionDir creates a timestamped directory under outDir and
// returns its path.
func newSessionDir(outDir string) (string, error) {
	dir := filepath.Join(outDir, "session_"+time.Now().Format("20060102_150405"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// loadSummaryPrompt resolves the analysis/interview prompt template.
// An explicit path is authoritative; otherwise SUMMARY_PROMPT is tried
// and read failures fall back to the built-in prompt ("" text).
func loadSummaryPrompt(path string) (string, string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", "", fmt.Errorf("read prompt %s: %w", path, err)
		}
		return string(data), filepath.Base(path), nil
	}
	if env := os.Getenv("SUMMARY_PROMPT"); env != "" {
		if data, err := os.ReadFile(env); err == nil {
			return string(data), filepath.Base(env), nil
		}
	}
	return "", "", nil
}

// Interview mode is keyed off the chosen prompt, not a dedicated flag:
// any prompt file with "interview" in its name switches the session
// from periodic analysis to question capture.
func isInterviewPrompt(label string) bool {
	return strings.Contains(strings.ToLower(label), "interview")
}

const builtinChatLabel = "builtin.chatbot"

// loadChatPrompt resolves the chatbot system prompt: explicit path,
// CHAT_PROMPT, a prompt_library/ next to the working directory, then
// the built-in default.
func loadChatPrompt(path string) (string, string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", "", fmt.Errorf("read chat prompt %s: %w", path, err)
		}
		return string(data), path, nil
	}
	if env := os.Getenv("CHAT_PROMPT"); env != "" {
		if home, err := os.UserHomeDir(); err == nil {
			env = expandHome(env, home)
		}
		if data, err := os.ReadFile(env); err == nil {
			return string(data), env, nil
		}
	}
	for _, p := range []string{
		filepath.Join("prompt_library", "chatbot.md"),
		filepath.Join("prompt_library", "chatbot", "system.md"),
	} {
		if data, err := os.ReadFile(p); err == nil {
			return string(data), p, nil
		}
	}
	return defaultChatPrompt, builtinChatLabel, nil
}
