package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"glean/archive"
	"glean/audio"
	"glean/beep"
	"glean/contextload"
	"glean/doctor"
	"glean/llm"
	"glean/log"
	"glean/transcriber"
	"glean/update"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		device     string
		asrModel   string
		llmModel   string
		baseURL    string
		promptPath string
		chatPath   string
		outDir     string
		format     string
		contexts   []string
		noBeep     bool
		fakeAudio  string
	)

	cmd := &cobra.Command{
		Use:     "glean",
		Short:   "Record, transcribe and analyze a live session in a terminal dashboard",
		Version: version,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("device") {
				cfg.Device = device
			}
			if flags.Changed("asr-model") {
				cfg.ASRModel = asrModel
			}
			if flags.Changed("llm-model") {
				cfg.LLMModel = llmModel
			}
			if flags.Changed("base-url") {
				cfg.BaseURL = baseURL
			}
			if flags.Changed("prompt") {
				cfg.Prompt = promptPath
			}
			if flags.Changed("chat-prompt") {
				cfg.ChatPrompt = chatPath
			}
			if flags.Changed("out-dir") {
				cfg.OutDir = outDir
			}
			if flags.Changed("audio-format") {
				cfg.AudioFormat = format
			}
			if flags.Changed("no-beep") {
				cfg.NoBeep = noBeep
			}
			if flags.Changed("fake-audio") {
				cfg.FakeAudio = fakeAudio
			}
			cfg.Context = append(cfg.Context, contexts...)
			if home, err := os.UserHomeDir(); err == nil {
				cfg.OutDir = expandHome(cfg.OutDir, home)
				cfg.Prompt = expandHome(cfg.Prompt, home)
				cfg.ChatPrompt = expandHome(cfg.ChatPrompt, home)
				cfg.FakeAudio = expandHome(cfg.FakeAudio, home)
			}
			if err := cfg.validate(); err != nil {
				return err
			}
			return runSession(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "Config file (default ~/.config/glean/config.toml)")
	flags.StringVar(&device, "device", "", "Capture device ID or name substring")
	flags.StringVar(&asrModel, "asr-model", "", "Deepgram model for live transcription")
	flags.StringVar(&llmModel, "llm-model", "", "Chat-completions model for analysis and chat")
	flags.StringVar(&baseURL, "base-url", "", "OpenAI-compatible API base URL")
	flags.StringVar(&promptPath, "prompt", "", "Analysis prompt file (a name containing 'interview' switches to interview mode)")
	flags.StringVar(&chatPath, "chat-prompt", "", "Chatbot system prompt file")
	flags.StringVar(&outDir, "out-dir", "", "Session output directory (default ~/recordings)")
	flags.StringVar(&format, "audio-format", "", "Recording format: flac or wav")
	flags.StringArrayVarP(&contexts, "context", "C", nil, "Context source, file or URL (repeatable)")
	flags.BoolVar(&noBeep, "no-beep", false, "Disable audio cues")
	flags.StringVar(&fakeAudio, "fake-audio", "", "Replay a WAV file instead of capturing")

	cmd.AddCommand(newDevicesCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newUpdateCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func runSession(cfg Config) error {
	started := time.Now()

	if cfg.NoBeep {
		beep.Disable()
	} else {
		go beep.Init()
	}

	sessionDir, err := newSessionDir(cfg.OutDir)
	if err != nil {
		return fmt.Errorf("session dir: %w", err)
	}

	if logDir, err := log.ResolveDir(""); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not resolve log directory: %v\n", err)
	} else {
		log.SetDir(logDir)
		if err := log.EnsureDir(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
		} else if err := log.Init(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
		}
	}

	summaryPrompt, promptLabel, err := loadSummaryPrompt(cfg.Prompt)
	if err != nil {
		return err
	}
	chatPrompt, chatLabel, err := loadChatPrompt(cfg.ChatPrompt)
	if err != nil {
		return err
	}
	interview := isInterviewPrompt(promptLabel)

	stop := make(chan struct{})
	var stopOnce sync.Once
	stopSession := func() { stopOnce.Do(func() { close(stop) }) }

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		stopSession()
	}()

	store := NewStore()

	var ctxText string
	var ctxLabels []string
	if len(cfg.Context) > 0 {
		ctxText, ctxLabels = contextload.Collect(cfg.Context)
		if ctxText != "" {
			fmt.Printf("[=] Loaded context: %d chars from %d source(s)\n", len(ctxText), len(ctxLabels))
		} else {
			fmt.Println("[!] No usable context from -C/CONTEXT_PATHS. Check that files exist, URLs are reachable, and sources are .txt/.md or webpages.")
		}
	}
	var ctxIDs []string
	if len(ctxLabels) > 0 {
		for _, src := range cfg.Context {
			id := contextload.CanonicalID(src)
			if id == "" || slices.Contains(ctxIDs, id) {
				continue
			}
			ctxIDs = append(ctxIDs, id)
		}
	}
	store.AppendContext(ctxText, ctxLabels, ctxIDs)

	var capture audio.CaptureDevice
	srcLabel := "default"
	if cfg.FakeAudio != "" {
		fctx, err := audio.NewFakeContext(cfg.FakeAudio, true)
		if err != nil {
			fmt.Printf("[!] Fake audio: %v; continuing without recording.\n", err)
			log.Errorf("fake audio: %v", err)
		} else {
			defer fctx.Close()
			capture, err = fctx.NewCapture(nil, audio.DefaultConfig())
			if err != nil {
				fmt.Printf("[!] Fake audio: %v; continuing without recording.\n", err)
				log.Errorf("fake capture: %v", err)
			} else {
				srcLabel = "fake:" + filepath.Base(cfg.FakeAudio)
			}
		}
	} else {
		actx, err := audio.NewContext()
		if err != nil {
			fmt.Printf("[!] Audio init failed: %v; continuing without recording.\n", err)
			log.Errorf("audio context: %v", err)
		} else {
			defer actx.Close()
			var dev *audio.DeviceInfo
			if cfg.Device != "" {
				dev, err = audio.FindDevice(actx, cfg.Device)
				if err != nil {
					fmt.Printf("[!] %v; using default device.\n", err)
					log.Warnf("device lookup: %v", err)
				}
			} else if term.IsTerminal(int(os.Stdin.Fd())) {
				dev, err = audio.SelectDevice(actx)
				if err != nil {
					fmt.Printf("[!] Device selection failed: %v; using default device.\n", err)
					log.Warnf("device selection: %v", err)
					dev = nil
				}
			}
			if dev != nil {
				srcLabel = dev.Name
				if audio.IsBluetooth(dev.Name) {
					fmt.Println("[!] Bluetooth input detected; expect reduced audio quality.")
				}
			}
			capture, err = actx.NewCapture(dev, audio.DefaultConfig())
			if err != nil {
				fmt.Printf("[!] Capture init failed: %v; continuing without recording.\n", err)
				log.Errorf("capture init: %v", err)
				capture = nil
			}
		}
	}

	var recognizer transcriber.Transcriber
	if capture != nil {
		rec, err := transcriber.New(cfg.ASRKey, cfg.ASRModel)
		if err != nil {
			fmt.Printf("[!] %v; recording only.\n", err)
			log.Warnf("transcriber: %v", err)
		} else {
			recognizer = rec
		}
	}

	pipe, err := startPipeline(PipelineConfig{
		Capture:    capture,
		Recognizer: recognizer,
		ASRModel:   cfg.ASRModel,
		SessionDir: sessionDir,
		Format:     cfg.AudioFormat,
		Sink:       storeSink{store: store},
	}, stop)
	if err != nil && capture != nil {
		fmt.Printf("[!] %v; continuing without recording.\n", err)
		log.Errorf("pipeline: %v", err)
	}

	client := llm.New(llm.Config{APIKey: cfg.APIKey, Model: cfg.LLMModel, BaseURL: cfg.BaseURL})
	var gen textGenerator = client

	jobs := &workers{
		store:           store,
		gen:             gen,
		chatPrompt:      chatPrompt,
		interviewPrompt: summaryPrompt,
		status:          pushStatus,
	}

	switch {
	case interview:
		store.SetAnalysis("Interview mode: press 'i' to capture a question; press 'i' again to stop and generate an answer.")
	case gen.Available():
		an := &analyzer{store: store, gen: gen, prompt: summaryPrompt}
		go an.run(stop)
	default:
		store.SetAnalysis("Set OPENAI_API_KEY to enable live analysis.")
	}

	update.CheckInBackground(version, log.Dir(), func(rel update.Release) {
		log.Info("update_available: " + rel.Version)
		pushStatus("Update available: "+rel.Version+" (run: glean update)", 10*time.Second, false)
	})

	m := newDashModel(store, pipe, jobs, stopSession)
	m.interviewMode = interview
	m.srcLabel = srcLabel
	if client.Available() {
		m.llmLabel = cfg.LLMModel
	}
	if chatLabel != builtinChatLabel {
		m.chatLabel = filepath.Base(chatLabel)
	}

	p := newDashProgram(m)
	go func() {
		<-stop
		p.Quit()
	}()
	if _, err := p.Run(); err != nil {
		log.Errorf("ui: %v", err)
		fmt.Fprintf(os.Stderr, "Error running dashboard: %v\n", err)
	}
	tuiMu.Lock()
	tuiProgram = nil
	tuiMu.Unlock()
	stopSession()

	pipe.Wait()

	meta := reportMeta{
		Dir:         sessionDir,
		Source:      srcLabel,
		PromptLabel: promptLabel,
		Started:     started,
	}
	if client.Available() {
		meta.Model = cfg.LLMModel
	}
	notesPath, err := writeReport(meta, store, pipe, gen)
	if err != nil {
		log.Errorf("report: %v", err)
		fmt.Fprintf(os.Stderr, "Error writing notes: %v\n", err)
	} else {
		fmt.Printf("[+] Notes saved: %s\n", notesPath)
	}

	f := store.FindingsSnapshot()
	findingCount := len(f.Actions) + len(f.Questions) + len(f.Decisions) + len(f.Topics)

	sess := archive.Session{
		Started:   started,
		Ended:     time.Now(),
		Device:    srcLabel,
		Engine:    pipe.Engine(),
		Model:     meta.Model,
		AudioPath: pipe.AudioPath(),
		Lines:     pipe.Lines(),
	}
	for _, cat := range []struct {
		name  string
		items []string
	}{
		{"action", f.Actions},
		{"question", f.Questions},
		{"decision", f.Decisions},
		{"topic", f.Topics},
	} {
		for _, text := range cat.items {
			sess.Findings = append(sess.Findings, archive.Finding{Category: cat.name, Text: text})
		}
	}
	for _, qa := range store.QASnapshot() {
		sess.Exchanges = append(sess.Exchanges, archive.Exchange{Kind: "interview", Question: qa.Question, Answer: qa.Answer})
	}
	for _, ce := range store.ChatSnapshot() {
		if !ce.Answered {
			continue
		}
		sess.Exchanges = append(sess.Exchanges, archive.Exchange{Kind: "chat", Question: ce.Question, Answer: ce.Answer})
	}
	if err := archive.Save(filepath.Join(cfg.OutDir, "glean.db"), sess); err != nil {
		log.Errorf("archive: %v", err)
	}

	log.SessionEnd(len(sess.Lines), findingCount, len(sess.Exchanges))
	log.Close()
	return nil
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := audio.NewContext()
			if err != nil {
				return fmt.Errorf("audio init: %w", err)
			}
			defer ctx.Close()
			devices, err := ctx.Devices()
			if err != nil {
				return fmt.Errorf("device enumeration: %w", err)
			}
			if len(devices) == 0 {
				fmt.Println("No capture devices found.")
				return nil
			}
			for i, dev := range devices {
				tag := ""
				if audio.IsBluetooth(dev.Name) {
					tag = " (BT)"
				}
				fmt.Printf("%2d. %s%s\n", i+1, dev.Name, tag)
			}
			return nil
		},
	}
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor [wav-file]",
		Short: "Run environment diagnostics",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			wavFile := ""
			if len(args) > 0 {
				wavFile = args[0]
			}
			os.Exit(doctor.Run(wavFile))
		},
	}
}

func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Update glean to the latest release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if version == "dev" {
				fmt.Println("Dev build — cannot check for updates.")
				return nil
			}
			fmt.Printf("glean %s — checking for updates...\n", version)
			rel, err := update.CheckLatest(version)
			if err != nil {
				return err
			}
			if rel == nil {
				fmt.Println("Already up to date.")
				return nil
			}
			fmt.Printf("Update available: %s -> %s\n", version, rel.Version)
			fmt.Print("Continue? [y/N] ")
			var answer string
			fmt.Scanln(&answer)
			if answer != "y" && answer != "Y" {
				fmt.Println("Aborted.")
				return nil
			}
			fmt.Printf("Downloading %s...\n", rel.Version)
			if err := update.Apply(rel); err != nil {
				return err
			}
			fmt.Printf("Updated to %s\n", rel.Version)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("glean %s\n", version)
		},
	}
}
