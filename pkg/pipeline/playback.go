package pipeline

import (
	"sync"

	"github.com/google/uuid"
)

// AudioQueueItem is one synthesized audio unit awaiting playback, paired
// with the text that produced it.
type AudioQueueItem struct {
	ID         string
	Unit       *AudioUnit
	SourceText string
}

// AudioPlaybackQueue plays enqueued audio units strictly one at a time in
// FIFO order, auto-advancing on completion. Playback is gated on the
// user-speaking signal: the queue never starts an item while the user is
// talking, and the active item is stopped and discarded the instant the user
// starts. Queued items survive an interruption and resume in order once the
// user stops.
type AudioPlaybackQueue struct {
	mu           sync.Mutex
	items        []*AudioQueueItem
	playing      bool
	active       PlaybackHandle
	current      *AudioQueueItem
	userSpeaking bool
	firstFired   bool

	player Player
	logger Logger

	onFirstAudio  func()
	onPlayingText func(text string)
}

// NewAudioPlaybackQueue creates an idle queue rendering through player.
func NewAudioPlaybackQueue(player Player, logger Logger) *AudioPlaybackQueue {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &AudioPlaybackQueue{player: player, logger: logger}
}

// OnFirstAudio registers the one-shot callback fired the first time the
// queue starts playing an item. ResetFirstAudioFlag re-arms it.
func (q *AudioPlaybackQueue) OnFirstAudio(fn func()) {
	q.mu.Lock()
	q.onFirstAudio = fn
	q.mu.Unlock()
}

// OnPlayingText registers the observer for the currently sounding source
// text; it receives "" whenever playback stops for any reason.
func (q *AudioPlaybackQueue) OnPlayingText(fn func(text string)) {
	q.mu.Lock()
	q.onPlayingText = fn
	q.mu.Unlock()
}

// ResetFirstAudioFlag re-arms the one-shot first-audio notification for a
// new conversational turn.
func (q *AudioPlaybackQueue) ResetFirstAudioFlag() {
	q.mu.Lock()
	q.firstFired = false
	q.mu.Unlock()
}

// Enqueue appends an audio unit to the tail and re-evaluates auto-advance.
func (q *AudioPlaybackQueue) Enqueue(unit *AudioUnit, sourceText string) {
	item := &AudioQueueItem{
		ID:         uuid.NewString(),
		Unit:       unit,
		SourceText: sourceText,
	}
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.advance()
}

// HandleSpeakingChanged feeds the user-speaking signal into the queue.
// A transition to true pre-empts the active item immediately; a transition
// to false re-evaluates auto-advance.
func (q *AudioPlaybackQueue) HandleSpeakingChanged(speaking bool) {
	q.mu.Lock()
	q.userSpeaking = speaking
	if speaking {
		active := q.active
		item := q.current
		wasPlaying := q.playing
		q.active = nil
		q.current = nil
		q.playing = false
		textCB := q.onPlayingText
		q.mu.Unlock()

		if active != nil {
			active.Stop()
		}
		if wasPlaying {
			if item != nil {
				q.logger.Debug("playback interrupted by user speech", "id", item.ID)
			}
			if textCB != nil {
				textCB("")
			}
		}
		return
	}
	q.mu.Unlock()
	q.advance()
}

// Clear stops and discards the active item and empties the queue. Used when
// a session ends.
func (q *AudioPlaybackQueue) Clear() {
	q.mu.Lock()
	active := q.active
	wasPlaying := q.playing
	q.active = nil
	q.current = nil
	q.playing = false
	q.items = nil
	textCB := q.onPlayingText
	q.mu.Unlock()

	if active != nil {
		active.Stop()
	}
	if wasPlaying && textCB != nil {
		textCB("")
	}
}

// IsPlaying reports whether an item's audio is actively rendering.
func (q *AudioPlaybackQueue) IsPlaying() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// Len returns the number of queued (not yet playing) items.
func (q *AudioPlaybackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// CurrentText returns the source text of the actively playing item, if any.
func (q *AudioPlaybackQueue) CurrentText() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		return ""
	}
	return q.current.SourceText
}

// advance dequeues and starts the head item whenever the queue is idle,
// non-empty, and the user is not speaking. A start failure discards the item
// and moves on so one bad unit cannot stall the queue.
func (q *AudioPlaybackQueue) advance() {
	for {
		q.mu.Lock()
		if q.playing || q.userSpeaking || len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		item := q.items[0]
		q.items = q.items[1:]
		q.playing = true
		q.current = item
		q.mu.Unlock()

		handle, err := q.player.Play(item.Unit.PCM, item.Unit.SampleRate, item.Unit.Channels, func() {
			q.completed(item)
		})
		if err != nil {
			q.logger.Warn("playback start failed, discarding item", "id", item.ID, "error", err)
			q.mu.Lock()
			if q.current == item {
				q.playing = false
				q.current = nil
			}
			q.mu.Unlock()
			continue
		}

		q.mu.Lock()
		if q.current != item {
			// Completed or pre-empted while starting.
			q.mu.Unlock()
			handle.Stop()
			continue
		}
		q.active = handle
		fireFirst := !q.firstFired
		q.firstFired = true
		firstCB := q.onFirstAudio
		textCB := q.onPlayingText
		q.mu.Unlock()

		if fireFirst && firstCB != nil {
			firstCB()
		}
		if textCB != nil {
			textCB(item.SourceText)
		}
		return
	}
}

// completed handles natural end of playback for item. Stale completions
// (for an item already discarded) are ignored.
func (q *AudioPlaybackQueue) completed(item *AudioQueueItem) {
	q.mu.Lock()
	if q.current != item {
		q.mu.Unlock()
		return
	}
	q.playing = false
	q.current = nil
	q.active = nil
	textCB := q.onPlayingText
	q.mu.Unlock()

	if textCB != nil {
		textCB("")
	}
	q.advance()
}
