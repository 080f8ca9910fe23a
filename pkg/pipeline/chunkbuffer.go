package pipeline

import (
	"context"
	"strings"
	"sync"
)

// TextChunkBuffer accumulates text fragments arriving from the server and
// releases them to the synthesizer in fixed-size word batches, or all at once
// on a forced flush. At most one conversion is ever in flight; overlapping
// flush attempts are deferred, never dropped.
type TextChunkBuffer struct {
	mu             sync.Mutex
	pending        string
	converting     bool
	flushRequested bool

	ctx       context.Context
	threshold int
	synth     Synthesizer
	sink      AudioSink
	logger    Logger
}

// NewTextChunkBuffer creates an empty buffer feeding sink with audio
// synthesized from batches of at least cfg.BatchWordThreshold words.
func NewTextChunkBuffer(ctx context.Context, synth Synthesizer, sink AudioSink, cfg Config, logger Logger) *TextChunkBuffer {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = &NoOpLogger{}
	}
	threshold := cfg.BatchWordThreshold
	if threshold <= 0 {
		threshold = DefaultConfig().BatchWordThreshold
	}
	return &TextChunkBuffer{
		ctx:       ctx,
		threshold: threshold,
		synth:     synth,
		sink:      sink,
		logger:    logger,
	}
}

// Append concatenates fragment onto the pending text and attempts a
// non-forced flush.
func (b *TextChunkBuffer) Append(fragment string) {
	b.mu.Lock()
	b.pending += fragment
	b.mu.Unlock()
	b.flush(false)
}

// ForceFlush converts whatever text is pending regardless of the batch
// threshold. If a conversion is already in flight the flush is recorded and
// performed as soon as the conversion completes.
func (b *TextChunkBuffer) ForceFlush() {
	b.flush(true)
}

// Reset discards pending text and any deferred flush. A conversion already
// in flight is allowed to finish.
func (b *TextChunkBuffer) Reset() {
	b.mu.Lock()
	b.pending = ""
	b.flushRequested = false
	b.mu.Unlock()
}

// Pending returns the current accumulator contents.
func (b *TextChunkBuffer) Pending() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

// IsConverting reports whether a conversion is in flight.
func (b *TextChunkBuffer) IsConverting() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.converting
}

func (b *TextChunkBuffer) flush(force bool) {
	b.mu.Lock()
	if b.converting {
		if force {
			b.flushRequested = true
		}
		b.mu.Unlock()
		return
	}
	batch, ok := b.claimLocked(force)
	if !ok {
		b.mu.Unlock()
		return
	}
	b.converting = true
	b.mu.Unlock()

	go b.convertLoop(batch)
}

// claimLocked takes the next batch out of the accumulator. A forced claim
// takes everything; otherwise exactly threshold words are taken and the
// remainder is written back joined with single spaces. Caller must hold mu.
func (b *TextChunkBuffer) claimLocked(force bool) (string, bool) {
	words := strings.Fields(b.pending)
	if len(words) == 0 {
		return "", false
	}
	if force {
		b.pending = ""
		return strings.Join(words, " "), true
	}
	if len(words) < b.threshold {
		return "", false
	}
	b.pending = strings.Join(words[b.threshold:], " ")
	return strings.Join(words[:b.threshold], " "), true
}

// convertLoop serializes conversions. After each one completes it re-checks
// the buffer: a deferred forced flush takes priority, otherwise another
// threshold-sized batch is claimed if enough text accumulated meanwhile.
// An explicit loop rather than recursion keeps the stack flat under
// rapid-fire input.
func (b *TextChunkBuffer) convertLoop(batch string) {
	for {
		unit, err := b.synth.Convert(b.ctx, batch)
		if err != nil {
			// The failed batch is not retried; the pipeline resumes with
			// whatever text accumulated next.
			b.logger.Warn("batch synthesis failed, dropping batch", "error", err, "words", len(strings.Fields(batch)))
		} else {
			b.sink.Enqueue(unit, batch)
		}

		b.mu.Lock()
		force := b.flushRequested
		b.flushRequested = false
		next, ok := b.claimLocked(force)
		if !ok {
			b.converting = false
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()
		batch = next
	}
}
