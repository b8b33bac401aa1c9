// Package doctor runs interactive environment diagnostics for the
// capture, transcription, LLM and clipboard prerequisites.
package doctor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"glean/audio"
	"glean/clipboard"
	"glean/llm"
	"glean/transcriber"
)

// Run executes the diagnostic checks and returns an exit code
// (0=all pass, 1=any fail). A non-empty wavFile replays that file
// instead of recording from a microphone, for headless runs.
func Run(wavFile string) int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Println("glean doctor - environment diagnostics")
	fmt.Println("=======================================")

	allPass := true

	audioData, ok := checkCapture(wavFile)
	if !ok {
		allPass = false
	}
	if allPass && !checkTranscription(audioData) {
		allPass = false
	}
	if allPass && !checkLLM() {
		allPass = false
	}
	if allPass && !checkClipboard() {
		allPass = false
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func checkCapture(wavFile string) ([]byte, bool) {
	fmt.Println()
	fmt.Println("[1/4] Audio capture")

	var ctx audio.Context
	var device *audio.DeviceInfo

	if wavFile != "" {
		fctx, err := audio.NewFakeContext(wavFile, false)
		if err != nil {
			fmt.Printf("  FAIL: cannot read %s: %v\n", wavFile, err)
			return nil, false
		}
		ctx = fctx
		fmt.Printf("Replaying %s\n", wavFile)
	} else {
		actx, err := audio.NewContext()
		if err != nil {
			fmt.Printf("  FAIL: cannot connect to audio: %v\n", err)
			return nil, false
		}
		ctx = actx

		devices, err := actx.Devices()
		if err != nil {
			actx.Close()
			fmt.Printf("  FAIL: cannot list devices: %v\n", err)
			return nil, false
		}
		if len(devices) == 0 {
			actx.Close()
			fmt.Println("  FAIL: no capture devices found")
			return nil, false
		}

		if len(devices) == 1 {
			device = &devices[0]
			fmt.Printf("Using device: %s\n", device.Name)
		} else {
			reader := bufio.NewReader(os.Stdin)
			fmt.Println()
			fmt.Println("Select input device:")
			for i, d := range devices {
				fmt.Printf("  %d. %s\n", i+1, d.Name)
			}
			fmt.Printf("Choice [1-%d]: ", len(devices))

			devChoice, _ := reader.ReadString('\n')
			devChoice = strings.TrimSpace(devChoice)
			idx := 0
			if devChoice != "" {
				fmt.Sscanf(devChoice, "%d", &idx)
				idx--
			}
			if idx < 0 || idx >= len(devices) {
				actx.Close()
				fmt.Println("  FAIL: invalid choice")
				return nil, false
			}
			device = &devices[idx]
			fmt.Printf("Selected: %s\n", device.Name)
		}

		fmt.Println()
		fmt.Print("Press Enter and speak for 3 seconds...")
		bufio.NewReader(os.Stdin).ReadString('\n')
	}
	defer ctx.Close()

	stop := make(chan struct{})
	go func() {
		time.Sleep(3 * time.Second)
		close(stop)
	}()

	audioData, err := recordAudio(ctx, device, stop)
	if err != nil {
		fmt.Printf("  FAIL: recording error: %v\n", err)
		return nil, false
	}
	if len(audioData) == 0 {
		fmt.Println("  FAIL: no audio captured")
		return nil, false
	}

	fmt.Printf("  PASS: recorded %.1f KB\n", float64(len(audioData))/1024)
	return audioData, true
}

func checkTranscription(audioData []byte) bool {
	fmt.Println()
	fmt.Println("[2/4] Live transcription (Deepgram)")

	apiKey := os.Getenv("DEEPGRAM_API_KEY")
	if apiKey == "" {
		fmt.Println("  SKIP: DEEPGRAM_API_KEY not set; sessions run recording-only.")
		return true
	}

	trans, err := transcriber.New(apiKey, "")
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	sess, err := trans.NewSession(context.Background(), transcriber.SessionConfig{})
	if err != nil {
		fmt.Printf("  FAIL: session error: %v\n", err)
		return false
	}
	go func() {
		for range sess.Updates() {
		}
	}()

	fmt.Println("  Transcribing captured audio...")
	sess.Feed(audioData)
	result, err := sess.Close()
	if err != nil {
		fmt.Printf("  FAIL: transcription error: %v\n", err)
		return false
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		text = "(no speech detected)"
	}
	fmt.Printf("\n  Transcribed text: %s\n\n", text)

	confirmReader := bufio.NewReader(os.Stdin)
	fmt.Print("Is this correct? [y/n]: ")
	confirm, _ := confirmReader.ReadString('\n')
	confirm = strings.TrimSpace(strings.ToLower(confirm))

	if confirm == "y" || confirm == "yes" {
		fmt.Println("  PASS: transcription verified by user")
		return true
	}
	fmt.Println("  FAIL: transcription not confirmed")
	return false
}

func checkLLM() bool {
	fmt.Println()
	fmt.Println("[3/4] Analysis LLM (OpenAI)")

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		fmt.Println("  SKIP: OPENAI_API_KEY not set; live analysis and chat stay disabled.")
		return true
	}
	model := os.Getenv("LLM_MODEL")
	if model == "" {
		model = os.Getenv("OPENAI_MODEL")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	client := llm.New(llm.Config{APIKey: apiKey, Model: model, BaseURL: os.Getenv("OPENAI_BASE_URL")})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	fmt.Printf("  Calling %s...\n", model)
	reply, err := client.Generate(ctx, llm.Request{
		System:    "You are a connectivity check.",
		User:      "Reply with the single word: ready",
		MaxTokens: 8,
	})
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	if reply == "" {
		fmt.Println("  FAIL: empty completion")
		return false
	}
	fmt.Printf("  PASS: model replied %q\n", reply)
	return true
}

func checkClipboard() bool {
	fmt.Println()
	fmt.Println("[4/4] Clipboard")

	testStr := fmt.Sprintf("glean-doctor-%d", time.Now().UnixNano())
	if err := clipboard.Copy(testStr); err != nil {
		fmt.Printf("  FAIL: clipboard copy failed: %v\n", err)
		return false
	}
	got, err := clipboard.Read()
	if err != nil {
		fmt.Printf("  FAIL: clipboard read failed: %v\n", err)
		return false
	}
	if got != testStr {
		fmt.Printf("  FAIL: clipboard readback mismatch (got %q)\n", got)
		return false
	}
	fmt.Println("  PASS: clipboard round-trip verified")
	return true
}

func recordAudio(ctx audio.Context, device *audio.DeviceInfo, stop <-chan struct{}) ([]byte, error) {
	var pcmBuf []byte
	var bufMu sync.Mutex
	var stopped bool
	done := make(chan struct{})

	captureDevice, err := ctx.NewCapture(device, audio.DefaultConfig())
	if err != nil {
		return nil, err
	}

	captureDevice.SetCallback(func(data []byte, frameCount uint32) {
		bufMu.Lock()
		if stopped {
			bufMu.Unlock()
			return
		}
		pcmBuf = append(pcmBuf, data...)
		bufMu.Unlock()
	})

	if err := captureDevice.Start(); err != nil {
		captureDevice.Close()
		return nil, err
	}

	fmt.Print("  Recording")
	ticker := time.NewTicker(500 * time.Millisecond)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	<-stop
	close(done)

	captureDevice.Stop()
	fmt.Println(" done")
	captureDevice.Close()

	bufMu.Lock()
	stopped = true
	raw := pcmBuf
	bufMu.Unlock()

	return raw, nil
}
