package livesession

import (
	"sync"
	"time"

	"github.com/koscakluka/blurry-core/core/audio"
)

// playbackScheduler serializes synthesized speech chunks onto a shared
// timeline. Chunks are handed to the output client immediately (the device
// buffers them) while a monotonic cursor tracks where the timeline ends, so
// completion and interruption decisions never depend on wall-clock races.
type playbackScheduler struct {
	mu sync.Mutex

	sink AudioOutputClient

	clock clock

	// cursor marks the instant the last scheduled chunk finishes. It only
	// moves forward while chunks are in flight.
	cursor time.Time

	inflight   map[uint64]func() bool
	nextChunk  uint64
	generation uint64

	meter *volumeMeter

	// onDrained fires when the in-flight set transitions to empty.
	onDrained func()
}

func newPlaybackScheduler(sink AudioOutputClient, meter *volumeMeter) *playbackScheduler {
	return &playbackScheduler{
		sink:      sink,
		clock:     systemClock{},
		inflight:  map[uint64]func() bool{},
		meter:     meter,
		onDrained: func() {},
	}
}

func (p *playbackScheduler) SetDrainedCallback(onDrained func()) {
	if p == nil || onDrained == nil {
		return
	}

	p.mu.Lock()
	p.onDrained = onDrained
	p.mu.Unlock()
}

// Enqueue schedules one PCM chunk. The start time is the later of the cursor
// and now, so back-to-back chunks abut exactly and a fresh burst after
// silence starts immediately.
func (p *playbackScheduler) Enqueue(pcm []byte, sampleRate int) {
	if p == nil || len(pcm) == 0 {
		return
	}

	samples := audio.DecodeS16LE(pcm)
	chunkDuration := audio.Duration(len(pcm), audio.EncodingInfo{
		SampleRate: sampleRate,
		Format:     audio.EncodingLinear16,
	})

	// Match the sink's device rate; chunk timing still follows the source
	// rate so the cursor is independent of the output device.
	if p.sink != nil {
		if sinkRate := p.sink.EncodingInfo().SampleRate; sinkRate != 0 && sinkRate != sampleRate {
			pcm = audio.EncodeS16LE(audio.Resample(samples, sampleRate, sinkRate))
		}
	}

	p.mu.Lock()
	now := p.clock.Now()
	start := p.cursor
	if start.Before(now) {
		start = now
	}
	p.cursor = start.Add(chunkDuration)

	chunkID := p.nextChunk
	p.nextChunk++
	chunkGeneration := p.generation

	stop := p.clock.AfterFunc(p.cursor.Sub(now), func() {
		p.complete(chunkID, chunkGeneration)
	})
	p.inflight[chunkID] = stop
	p.mu.Unlock()

	p.meter.ObservePlayback(audio.RMS(samples))

	if p.sink != nil {
		if err := p.sink.SendAudio(pcm); err != nil {
			logger.Debug("Failed to forward playback chunk", "error", err)
		}
	}
}

func (p *playbackScheduler) complete(chunkID, chunkGeneration uint64) {
	p.mu.Lock()
	if chunkGeneration != p.generation {
		p.mu.Unlock()
		return
	}
	delete(p.inflight, chunkID)
	drained := len(p.inflight) == 0
	onDrained := p.onDrained
	p.mu.Unlock()

	if drained {
		onDrained()
	}
}

// IsSpeaking reports whether any scheduled audio has not yet finished.
func (p *playbackScheduler) IsSpeaking() bool {
	if p == nil {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inflight) > 0
}

// StopAll cancels every pending completion, clears the device buffer, and
// rewinds the cursor so the next chunk starts immediately. Used on
// interruption and teardown.
func (p *playbackScheduler) StopAll() {
	if p == nil {
		return
	}

	p.mu.Lock()
	for _, stop := range p.inflight {
		stop()
	}
	p.inflight = map[uint64]func() bool{}
	p.generation++
	p.cursor = time.Time{}
	sink := p.sink
	p.mu.Unlock()

	if sink != nil {
		sink.ClearBuffer()
	}
	p.meter.ResetPlayback()
}
