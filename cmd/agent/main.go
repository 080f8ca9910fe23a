package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	vocaprep "github.com/vocaprep-ai/vocaprep-agent"
	"github.com/vocaprep-ai/vocaprep-agent/pkg/audio"
	"github.com/vocaprep-ai/vocaprep-agent/pkg/logging"
	"github.com/vocaprep-ai/vocaprep-agent/pkg/pipeline"
	sttProvider "github.com/vocaprep-ai/vocaprep-agent/pkg/providers/stt"
	ttsProvider "github.com/vocaprep-ai/vocaprep-agent/pkg/providers/tts"
)

// enginePlayer adapts the audio engine to the playback queue's Player
// interface.
type enginePlayer struct {
	eng *audio.Engine
}

func (p *enginePlayer) Play(pcm []byte, sampleRate, channels int, onDone func()) (pipeline.PlaybackHandle, error) {
	return p.eng.Play(pcm, sampleRate, channels, onDone)
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, using system environment variables")
	}

	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	elevenKey := os.Getenv("ELEVENLABS_API_KEY")
	elevenVoice := os.Getenv("ELEVENLABS_VOICE_ID")
	serverURL := os.Getenv("SERVER_WS_URL")
	sessionID := os.Getenv("SESSION_ID")

	ttsProviderName := os.Getenv("TTS_PROVIDER")
	if ttsProviderName == "" {
		ttsProviderName = "deepgram"
	}

	if deepgramKey == "" {
		log.Fatal("Error: DEEPGRAM_API_KEY must be set.")
	}
	if serverURL == "" {
		log.Fatal("Error: SERVER_WS_URL must be set.")
	}
	if sessionID == "" {
		log.Fatal("Error: SESSION_ID must be set.")
	}

	logger, err := logging.New(logging.Config{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
	})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	// TTS Selection
	var ttsClient pipeline.TTSClient
	switch ttsProviderName {
	case "elevenlabs":
		if elevenKey == "" {
			log.Fatal("Error: ELEVENLABS_API_KEY must be set for elevenlabs TTS")
		}
		ttsClient = ttsProvider.NewElevenLabs(elevenKey, elevenVoice)
	case "deepgram":
		fallthrough
	default:
		ttsClient = ttsProvider.NewDeepgram(deepgramKey)
	}

	cfg := pipeline.DefaultConfig()

	fmt.Printf("Configured: STT=deepgram | TTS=%s | Server=%s\n", ttsProviderName, serverURL)
	fmt.Printf("Sample Rate: %dHz | Batch: %d words\n", cfg.SampleRate, cfg.BatchWordThreshold)
	fmt.Println("Interview agent started. Press Ctrl+C to exit")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := audio.NewEngine()
	defer eng.Close()

	agent, err := vocaprep.NewAgent(vocaprep.AgentOptions{
		SessionID:   sessionID,
		ServerURL:   serverURL,
		Transcriber: sttProvider.NewDeepgram(deepgramKey, logger),
		TTS:         ttsClient,
		Microphone:  audio.NewMicrophone(eng, cfg.SampleRate, cfg.Channels, cfg.ChunkInterval),
		Player:      &enginePlayer{eng: eng},
		Config:      cfg,
		Logger:      logger,
	})
	if err != nil {
		log.Fatal(err)
	}

	if err := agent.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer agent.Stop()

	// Visual feedback for microphone levels
	meter := audio.NewMeter()
	agent.Session().OnAudioChunk(func(pcm []byte) { meter.Push(pcm) })
	go func() {
		for {
			level := meter.Level()
			bars := ""
			dots := int(level * 500)
			if dots > 40 {
				dots = 40
			}
			for i := 0; i < dots; i++ {
				bars += "|"
			}
			fmt.Printf("\r[MIC ENERGY: %-40s] RMS: %.5f", bars, level)
			time.Sleep(100 * time.Millisecond)
		}
	}()

	go func() {
		for event := range agent.Events() {
			switch event.Type {
			case pipeline.UserSpeaking:
				fmt.Printf("\r\033[K🎤 [USER] Speaking...\n")
			case pipeline.UserStopped:
				fmt.Printf("\r\033[K⌛ [USER] Stopped.\n")
			case pipeline.InterimTranscript:
				fmt.Printf("\r\033[K📝 [TRANSCRIPT] %s", event.Data.(string))
			case pipeline.AnswerSent:
				fmt.Printf("\r\033[K📨 [ANSWER] %s\n", event.Data.(string))
			case pipeline.AssistantSpeaking:
				fmt.Printf("\r\033[K🔊 [ASSISTANT] Speaking...\n")
			case pipeline.AssistantText:
				fmt.Printf("\r\033[K💬 [ASSISTANT] %s\n", event.Data.(string))
			case pipeline.SessionCompleted:
				data := event.Data.(map[string]interface{})
				fmt.Printf("\r\033[K🏁 [COMPLETED] %s (score: %.1f)\n", data["message"], data["score"])
			case pipeline.ErrorEvent:
				fmt.Printf("\r\033[K❌ [ERROR] %v\n", event.Data)
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Printf("\nShutting down...\n")
}
