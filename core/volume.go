package livesession

import "sync"

// Smoothing constants for the two meters. Capture blends a scaled RMS into
// the previous reading; playback averages equally but only reacts to chunks
// that carry actual signal, so the meter decays naturally between sentences.
const (
	captureDecay = 0.8
	captureGain  = 2.0

	playbackBlend     = 0.5
	playbackThreshold = 0.01
)

// volumeMeter tracks smoothed input and output levels in [0, 1] for
// visualization. Readings are advisory; they never influence the audio path.
type volumeMeter struct {
	mu sync.RWMutex

	capture  float64
	playback float64
}

// ObserveCapture folds one normalized RMS reading into the capture level.
func (m *volumeMeter) ObserveCapture(rms float64) {
	if m == nil {
		return
	}

	m.mu.Lock()
	m.capture = clampUnit(m.capture*captureDecay + rms*captureGain)
	m.mu.Unlock()
}

// ObservePlayback folds one normalized RMS reading into the playback level.
// Near-silent chunks are ignored so the meter holds its last visible level
// briefly instead of flickering.
func (m *volumeMeter) ObservePlayback(rms float64) {
	if m == nil || rms <= playbackThreshold {
		return
	}

	m.mu.Lock()
	m.playback = clampUnit(m.playback*playbackBlend + rms*playbackBlend)
	m.mu.Unlock()
}

// Levels returns the current capture and playback levels.
func (m *volumeMeter) Levels() (capture, playback float64) {
	if m == nil {
		return 0, 0
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.capture, m.playback
}

// Reset zeroes both levels. Called on teardown so a stale reading does not
// survive into the next session.
func (m *volumeMeter) Reset() {
	if m == nil {
		return
	}

	m.mu.Lock()
	m.capture = 0
	m.playback = 0
	m.mu.Unlock()
}

// ResetPlayback zeroes only the playback level, leaving the capture level
// untouched. Used when buffered speech is flushed mid-session.
func (m *volumeMeter) ResetPlayback() {
	if m == nil {
		return
	}

	m.mu.Lock()
	m.playback = 0
	m.mu.Unlock()
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
