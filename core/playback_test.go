package livesession

import (
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/blurry-core/core/audio"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	timer := &fakeTimer{deadline: c.now.Add(d), fn: f}
	c.timers = append(c.timers, timer)
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if timer.fired || timer.stopped {
			return false
		}
		timer.stopped = true
		return true
	}
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)

	var due []*fakeTimer
	for _, timer := range c.timers {
		if !timer.stopped && !timer.fired && !timer.deadline.After(c.now) {
			timer.fired = true
			due = append(due, timer)
		}
	}
	c.mu.Unlock()

	for _, timer := range due {
		timer.fn()
	}
}

type fakeSink struct {
	mu      sync.Mutex
	chunks  [][]byte
	cleared int
}

func (s *fakeSink) SendAudio(audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, audio)
	return nil
}

func (s *fakeSink) ClearBuffer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared++
}

func (s *fakeSink) Close() {}

func (s *fakeSink) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: 24000, Format: audio.EncodingLinear16}
}

// chunkOf builds a silent s16le buffer lasting the given number of
// milliseconds at 24kHz.
func chunkOf(ms int) []byte {
	return make([]byte, 24000*2*ms/1000)
}

func newTestScheduler(sink AudioOutputClient) (*playbackScheduler, *fakeClock) {
	scheduler := newPlaybackScheduler(sink, &volumeMeter{})
	clock := newFakeClock()
	scheduler.clock = clock
	return scheduler, clock
}

func TestEnqueueSchedulesChunksBackToBack(t *testing.T) {
	scheduler, clock := newTestScheduler(&fakeSink{})

	scheduler.Enqueue(chunkOf(100), 24000)
	scheduler.Enqueue(chunkOf(100), 24000)

	if !scheduler.IsSpeaking() {
		t.Fatalf("expected scheduler to report speaking with chunks in flight")
	}

	clock.advance(150 * time.Millisecond)
	if !scheduler.IsSpeaking() {
		t.Fatalf("expected second chunk to still be in flight at 150ms")
	}

	clock.advance(50 * time.Millisecond)
	if scheduler.IsSpeaking() {
		t.Fatalf("expected both chunks to complete at exactly 200ms")
	}
}

func TestEnqueueAfterSilenceStartsAtNow(t *testing.T) {
	scheduler, clock := newTestScheduler(&fakeSink{})

	scheduler.Enqueue(chunkOf(100), 24000)
	clock.advance(500 * time.Millisecond)

	// A fresh burst must not inherit the stale cursor.
	scheduler.Enqueue(chunkOf(100), 24000)
	clock.advance(99 * time.Millisecond)
	if !scheduler.IsSpeaking() {
		t.Fatalf("expected fresh chunk to still be playing")
	}
	clock.advance(time.Millisecond)
	if scheduler.IsSpeaking() {
		t.Fatalf("expected fresh chunk to complete 100ms after enqueue, not at the stale cursor")
	}
}

func TestDrainedCallbackFiresOnceAllChunksComplete(t *testing.T) {
	scheduler, clock := newTestScheduler(&fakeSink{})

	var drained int
	scheduler.SetDrainedCallback(func() { drained++ })

	scheduler.Enqueue(chunkOf(50), 24000)
	scheduler.Enqueue(chunkOf(50), 24000)

	clock.advance(60 * time.Millisecond)
	if drained != 0 {
		t.Fatalf("drained callback fired with a chunk still in flight")
	}

	clock.advance(40 * time.Millisecond)
	if drained != 1 {
		t.Fatalf("expected exactly 1 drained notification, got %d", drained)
	}
}

func TestStopAllCancelsPendingChunks(t *testing.T) {
	sink := &fakeSink{}
	scheduler, clock := newTestScheduler(sink)

	var drained int
	scheduler.SetDrainedCallback(func() { drained++ })

	scheduler.Enqueue(chunkOf(100), 24000)
	scheduler.Enqueue(chunkOf(100), 24000)
	scheduler.StopAll()

	if scheduler.IsSpeaking() {
		t.Fatalf("expected no chunks in flight after StopAll")
	}
	if sink.cleared != 1 {
		t.Fatalf("expected device buffer to be cleared once, got %d", sink.cleared)
	}

	clock.advance(time.Second)
	if drained != 0 {
		t.Fatalf("cancelled chunks must not report completion, got %d drained calls", drained)
	}
}

func TestStopAllThenEnqueueStartsFresh(t *testing.T) {
	scheduler, clock := newTestScheduler(&fakeSink{})

	scheduler.Enqueue(chunkOf(500), 24000)
	scheduler.StopAll()

	scheduler.Enqueue(chunkOf(100), 24000)
	clock.advance(100 * time.Millisecond)
	if scheduler.IsSpeaking() {
		t.Fatalf("expected post-stop chunk to play for its own duration only")
	}
}

func TestEnqueueResamplesToSinkRate(t *testing.T) {
	sink := &fakeSink{}
	scheduler, _ := newTestScheduler(sink)

	// 100ms at 12kHz should arrive as 100ms at the sink's 24kHz.
	scheduler.Enqueue(make([]byte, 12000*2/10), 12000)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.chunks) != 1 {
		t.Fatalf("expected 1 forwarded chunk, got %d", len(sink.chunks))
	}
	if got, want := len(sink.chunks[0]), 24000*2/10; got != want {
		t.Fatalf("expected %d bytes after resampling, got %d", want, got)
	}
}

func TestEnqueueIgnoresEmptyChunks(t *testing.T) {
	scheduler, _ := newTestScheduler(&fakeSink{})

	scheduler.Enqueue(nil, 24000)

	if scheduler.IsSpeaking() {
		t.Fatalf("empty chunk must not occupy the timeline")
	}
}
