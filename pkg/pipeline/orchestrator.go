package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// SessionOrchestrator wires the transcription session, text buffer,
// synthesizer and playback queue to the bidirectional server channel:
// transcripts flow upstream when the user stops talking, text chunks flow
// downstream into the buffer, and start/stop control the whole call.
type SessionOrchestrator struct {
	session *TranscriptionSession
	buffer  *TextChunkBuffer
	queue   *AudioPlaybackQueue
	channel ServerChannel
	logger  Logger
	cfg     Config

	sessionID string

	mu          sync.Mutex
	started     bool
	channelOpen bool
	lastSent    string

	events chan Event
}

// NewSessionOrchestrator wires the components together. It registers itself
// as the observer of the transcription session's speaking signal and of the
// queue's first-audio and playing-text notifications.
func NewSessionOrchestrator(sessionID string, session *TranscriptionSession, buffer *TextChunkBuffer, queue *AudioPlaybackQueue, channel ServerChannel, cfg Config, logger Logger) *SessionOrchestrator {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	o := &SessionOrchestrator{
		session:   session,
		buffer:    buffer,
		queue:     queue,
		channel:   channel,
		logger:    logger,
		cfg:       cfg,
		sessionID: sessionID,
		events:    make(chan Event, 256),
	}

	session.OnSpeakingChanged(o.handleSpeakingChanged)
	session.OnInterim(func(text string) {
		if text != "" {
			o.emit(InterimTranscript, text)
		}
	})
	queue.OnFirstAudio(func() {
		o.emit(AssistantSpeaking, nil)
	})
	queue.OnPlayingText(func(text string) {
		if text != "" {
			o.emit(AssistantText, text)
		}
	})

	return o
}

// Events returns the UI-facing notification stream.
func (o *SessionOrchestrator) Events() <-chan Event {
	return o.events
}

// Start joins the interview session on the server and begins transcription.
// A transcription start failure closes the channel again and leaves the
// orchestrator restartable.
func (o *SessionOrchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already started")
	}
	o.started = true
	o.channelOpen = true
	o.lastSent = ""
	o.mu.Unlock()

	if err := o.channel.JoinSession(o.sessionID); err != nil {
		o.teardownChannel()
		return fmt.Errorf("%w: join_session: %v", ErrConnection, err)
	}
	if err := o.channel.StartSession(); err != nil {
		o.teardownChannel()
		return fmt.Errorf("%w: start_session: %v", ErrConnection, err)
	}

	if err := o.session.Start(ctx); err != nil {
		o.teardownChannel()
		return err
	}

	o.logger.Info("session started", "session_id", o.sessionID)
	return nil
}

// Stop tears down transcription, playback and the channel. Safe to call more
// than once.
func (o *SessionOrchestrator) Stop() {
	o.session.Stop()
	o.queue.Clear()
	o.buffer.Reset()
	o.teardownChannel()
	o.mu.Lock()
	o.started = false
	o.mu.Unlock()
	o.logger.Info("session stopped", "session_id", o.sessionID)
}

// HandleTextChunk routes a server text fragment into the buffer.
func (o *SessionOrchestrator) HandleTextChunk(chunk string) {
	o.buffer.Append(chunk)
}

// HandleTextComplete force-flushes whatever text remains for the turn.
func (o *SessionOrchestrator) HandleTextComplete(fullText string) {
	o.logger.Debug("assistant turn complete", "chars", len(fullText))
	o.buffer.ForceFlush()
}

// HandleSessionCompleted stops transcription, clears playback, and closes
// the channel after a short fixed delay so final state can render.
func (o *SessionOrchestrator) HandleSessionCompleted(message string, score float64) {
	o.logger.Info("interview completed", "session_id", o.sessionID, "score", score)
	o.session.Stop()
	o.queue.Clear()
	o.emit(SessionCompleted, map[string]interface{}{"message": message, "score": score})

	delay := o.cfg.CompletedCloseDelay
	if delay <= 0 {
		delay = DefaultConfig().CompletedCloseDelay
	}
	time.AfterFunc(delay, o.teardownChannel)
}

// HandleServerError surfaces a server-reported error on the event stream.
func (o *SessionOrchestrator) HandleServerError(message string) {
	o.logger.Error("server error", "session_id", o.sessionID, "message", message)
	o.emit(ErrorEvent, message)
}

// handleSpeakingChanged relays the speaking signal into the playback queue
// and, on the falling edge, turns pending finalized utterances into one
// upstream answer.
func (o *SessionOrchestrator) handleSpeakingChanged(speaking bool) {
	o.queue.HandleSpeakingChanged(speaking)
	if speaking {
		o.emit(UserSpeaking, nil)
		return
	}
	o.emit(UserStopped, nil)
	o.sendPendingAnswer()
}

// sendPendingAnswer joins the finalized utterances gathered during the
// user's turn and transmits them, unless identical to the previous
// transmission (duplicate suppression: the same utterance-end can be
// signalled by both the fast and the fallback path).
func (o *SessionOrchestrator) sendPendingAnswer() {
	o.mu.Lock()
	open := o.channelOpen
	o.mu.Unlock()
	if !open {
		return
	}

	finals := o.session.DrainFinalUtterances()
	if len(finals) == 0 {
		return
	}
	text := strings.Join(finals, " ")

	o.mu.Lock()
	if text == o.lastSent {
		o.mu.Unlock()
		o.logger.Debug("duplicate answer suppressed", "chars", len(text))
		return
	}
	o.lastSent = text
	o.mu.Unlock()

	// New turn: anything still buffered or armed from the previous assistant
	// turn is stale now.
	o.buffer.Reset()
	o.queue.ResetFirstAudioFlag()

	if err := o.channel.SendUserResponse(text); err != nil {
		o.logger.Error("sending user response failed", "error", err)
		o.emit(ErrorEvent, err.Error())
		return
	}
	o.emit(AnswerSent, text)
}

func (o *SessionOrchestrator) teardownChannel() {
	o.mu.Lock()
	open := o.channelOpen
	o.channelOpen = false
	o.mu.Unlock()
	if !open {
		return
	}
	if err := o.channel.Close(); err != nil {
		o.logger.Warn("channel close failed", "error", err)
	}
}

func (o *SessionOrchestrator) emit(t EventType, data interface{}) {
	ev := Event{Type: t, SessionID: o.sessionID, Data: data}
	select {
	case o.events <- ev:
	default:
		o.logger.Warn("event dropped, slow consumer", "type", t)
	}
}
