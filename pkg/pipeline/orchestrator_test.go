package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"
)

type MockServerChannel struct {
	mu       sync.Mutex
	joined   []string
	started  int
	sent     []string
	closed   int
	joinErr  error
	startErr error
	sendErr  error
}

func (m *MockServerChannel) JoinSession(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.joinErr != nil {
		return m.joinErr
	}
	m.joined = append(m.joined, sessionID)
	return nil
}

func (m *MockServerChannel) StartSession() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.started++
	return nil
}

func (m *MockServerChannel) SendUserResponse(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, text)
	return nil
}

func (m *MockServerChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *MockServerChannel) sentResponses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

func (m *MockServerChannel) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type orchFixture struct {
	orch    *SessionOrchestrator
	tr      *MockLiveTranscriber
	mic     *MockMicrophone
	channel *MockServerChannel
	player  *MockPlayer
	synth   *MockSynthesizer
	buffer  *TextChunkBuffer
	queue   *AudioPlaybackQueue
}

func newOrchFixture(t *testing.T, cfg Config) *orchFixture {
	t.Helper()
	mic := &MockMicrophone{}
	tr := &MockLiveTranscriber{}
	session := NewTranscriptionSession(mic, tr, cfg, nil)

	player := &MockPlayer{}
	queue := NewAudioPlaybackQueue(player, nil)
	synth := &MockSynthesizer{}
	buffer := NewTextChunkBuffer(context.Background(), synth, queue, cfg, nil)
	channel := &MockServerChannel{}

	orch := NewSessionOrchestrator("sess-42", session, buffer, queue, channel, cfg, nil)
	return &orchFixture{
		orch: orch, tr: tr, mic: mic, channel: channel,
		player: player, synth: synth, buffer: buffer, queue: queue,
	}
}

func (f *orchFixture) start(t *testing.T) {
	t.Helper()
	if err := f.orch.Start(context.Background()); err != nil {
		t.Fatalf("Expected orchestrator start to succeed, got %v", err)
	}
}

func waitEvent(t *testing.T, orch *SessionOrchestrator, want EventType) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-orch.Events():
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for %s event", want)
		}
	}
}

func TestOrchestratorStart(t *testing.T) {
	f := newOrchFixture(t, DefaultConfig())
	f.start(t)

	if len(f.channel.joined) != 1 || f.channel.joined[0] != "sess-42" {
		t.Errorf("Expected join with session id, got %v", f.channel.joined)
	}
	if f.channel.started != 1 {
		t.Errorf("Expected start_session sent once, got %d", f.channel.started)
	}
	if !f.mic.started {
		t.Error("Expected transcription running after start")
	}
}

func TestOrchestratorStartFailureClosesChannel(t *testing.T) {
	f := newOrchFixture(t, DefaultConfig())
	f.mic.startErr = context.DeadlineExceeded

	if err := f.orch.Start(context.Background()); err == nil {
		t.Fatal("Expected start to fail when the microphone is unavailable")
	}
	if f.channel.closeCount() != 1 {
		t.Errorf("Expected channel closed after failed start, got %d closes", f.channel.closeCount())
	}
}

func TestAnswerSentWhenUserStops(t *testing.T) {
	f := newOrchFixture(t, DefaultConfig())
	f.start(t)

	f.tr.handlers.OnTranscript(TranscriptEvent{Text: "I would use", IsFinal: false})
	waitEvent(t, f.orch, UserSpeaking)
	f.tr.handlers.OnTranscript(TranscriptEvent{Text: "I would use a hash map.", IsFinal: true, SpeechFinal: true})

	ev := waitEvent(t, f.orch, AnswerSent)
	if ev.Data.(string) != "I would use a hash map." {
		t.Errorf("Expected answer text, got %v", ev.Data)
	}
	sent := f.channel.sentResponses()
	if len(sent) != 1 || sent[0] != "I would use a hash map." {
		t.Errorf("Expected one user response, got %v", sent)
	}
}

func TestAnswerJoinsMultipleFinals(t *testing.T) {
	f := newOrchFixture(t, DefaultConfig())
	f.start(t)

	f.tr.handlers.OnTranscript(TranscriptEvent{Text: "First sentence.", IsFinal: true})
	f.tr.handlers.OnTranscript(TranscriptEvent{Text: "Second sentence.", IsFinal: true})
	f.tr.handlers.OnUtteranceEnd(UtteranceEndEvent{})

	waitEvent(t, f.orch, AnswerSent)
	sent := f.channel.sentResponses()
	if len(sent) != 1 || sent[0] != "First sentence. Second sentence." {
		t.Errorf("Expected finals joined into one answer, got %v", sent)
	}
}

func TestDuplicateAnswerSuppressed(t *testing.T) {
	f := newOrchFixture(t, DefaultConfig())
	f.start(t)

	f.tr.handlers.OnTranscript(TranscriptEvent{Text: "Yes.", IsFinal: true, SpeechFinal: true})
	waitEvent(t, f.orch, AnswerSent)

	f.tr.handlers.OnTranscript(TranscriptEvent{Text: "Yes.", IsFinal: true, SpeechFinal: true})
	waitEvent(t, f.orch, UserStopped)

	if sent := f.channel.sentResponses(); len(sent) != 1 {
		t.Errorf("Expected identical answer suppressed, got %v", sent)
	}
}

func TestEmptyTurnSendsNothing(t *testing.T) {
	f := newOrchFixture(t, DefaultConfig())
	f.start(t)

	f.tr.handlers.OnTranscript(TranscriptEvent{Text: "uh", IsFinal: false})
	f.tr.handlers.OnUtteranceEnd(UtteranceEndEvent{})
	waitEvent(t, f.orch, UserStopped)

	if sent := f.channel.sentResponses(); len(sent) != 0 {
		t.Errorf("Expected no answer without finalized text, got %v", sent)
	}
}

func TestTextChunksFlowToPlayback(t *testing.T) {
	f := newOrchFixture(t, DefaultConfig())
	f.start(t)

	f.orch.HandleTextChunk("Tell me about ")
	f.orch.HandleTextChunk("your experience.")
	f.orch.HandleTextComplete("Tell me about your experience.")

	waitEvent(t, f.orch, AssistantSpeaking)
	waitEvent(t, f.orch, AssistantText)

	if f.player.startedCount() != 1 {
		t.Errorf("Expected one synthesized unit playing, got %d", f.player.startedCount())
	}
	f.synth.mu.Lock()
	batch := f.synth.calls[0]
	f.synth.mu.Unlock()
	if batch != "Tell me about your experience." {
		t.Errorf("Expected concatenated chunks synthesized, got %q", batch)
	}
}

func TestUserSpeechInterruptsAssistant(t *testing.T) {
	f := newOrchFixture(t, DefaultConfig())
	f.start(t)

	f.orch.HandleTextChunk("A long question for you today.")
	f.orch.HandleTextComplete("A long question for you today.")
	waitEvent(t, f.orch, AssistantSpeaking)

	f.tr.handlers.OnTranscript(TranscriptEvent{Text: "wait", IsFinal: false})
	waitEvent(t, f.orch, UserSpeaking)

	if !f.player.handles[0].isStopped() {
		t.Error("Expected assistant playback stopped when user spoke")
	}
	if f.queue.IsPlaying() {
		t.Error("Expected queue idle during user speech")
	}
}

func TestSessionCompletedTeardown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CompletedCloseDelay = 20 * time.Millisecond
	f := newOrchFixture(t, cfg)
	f.start(t)

	f.orch.HandleSessionCompleted("Great interview!", 8.5)

	ev := waitEvent(t, f.orch, SessionCompleted)
	data := ev.Data.(map[string]interface{})
	if data["message"] != "Great interview!" || data["score"] != 8.5 {
		t.Errorf("Expected completion payload, got %v", data)
	}
	if !f.mic.stopped {
		t.Error("Expected transcription stopped on completion")
	}
	if f.channel.closeCount() != 0 {
		t.Error("Expected channel still open immediately after completion")
	}

	time.Sleep(100 * time.Millisecond)
	if f.channel.closeCount() != 1 {
		t.Errorf("Expected channel closed after the delay, got %d closes", f.channel.closeCount())
	}
}

func TestServerErrorSurfaced(t *testing.T) {
	f := newOrchFixture(t, DefaultConfig())
	f.start(t)

	f.orch.HandleServerError("invalid session")
	ev := waitEvent(t, f.orch, ErrorEvent)
	if ev.Data.(string) != "invalid session" {
		t.Errorf("Expected server error message, got %v", ev.Data)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	f := newOrchFixture(t, DefaultConfig())
	f.start(t)

	f.orch.Stop()
	f.orch.Stop()

	if f.channel.closeCount() != 1 {
		t.Errorf("Expected channel closed once, got %d", f.channel.closeCount())
	}
	if !f.mic.stopped {
		t.Error("Expected microphone released")
	}
}
