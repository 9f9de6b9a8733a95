package livesession

import (
	"sync"
	"sync/atomic"

	"github.com/koscakluka/blurry-core/core/audio"
)

// capturePipeline processes microphone chunks on their way to the live
// service: meter the raw signal, resample to the service's input rate, and
// ship the result. The pipeline is stateless between chunks apart from the
// meter, so it can be enabled and disabled freely across reconnects.
type capturePipeline struct {
	sourceEncoding audio.EncodingInfo
	targetRate     int

	meter *volumeMeter

	// enabled gates forwarding; metering keeps running either way so the
	// visualization reflects the microphone even while disconnected.
	enabled atomic.Bool

	sendMu sync.RWMutex
	send   func(pcm []byte) error
}

func newCapturePipeline(sourceEncoding audio.EncodingInfo, meter *volumeMeter) *capturePipeline {
	return &capturePipeline{
		sourceEncoding: sourceEncoding,
		targetRate:     audio.DefaultCaptureRate,
		meter:          meter,
		send:           func([]byte) error { return nil },
	}
}

// Enable arms forwarding with the given sender. A nil sender disables.
func (c *capturePipeline) Enable(send func(pcm []byte) error) {
	if c == nil {
		return
	}

	if send == nil {
		c.Disable()
		return
	}

	c.sendMu.Lock()
	c.send = send
	c.sendMu.Unlock()
	c.enabled.Store(true)
}

func (c *capturePipeline) Disable() {
	if c == nil {
		return
	}

	c.enabled.Store(false)
	c.sendMu.Lock()
	c.send = func([]byte) error { return nil }
	c.sendMu.Unlock()
}

// Process handles one raw chunk from the input client. Send failures are
// dropped without buffering: realtime input is only useful fresh, and the
// session teardown path surfaces the underlying fault.
func (c *capturePipeline) Process(chunk []byte) {
	if c == nil || len(chunk) == 0 {
		return
	}

	pcm := chunk
	if c.sourceEncoding.Format != audio.EncodingLinear16 {
		decoded, err := audio.Transcode(chunk, c.sourceEncoding.Format, audio.EncodingLinear16)
		if err != nil {
			logger.Warn("Dropped capture chunk with unsupported encoding", "error", err)
			return
		}
		pcm = decoded
	}
	samples := audio.DecodeS16LE(pcm)

	c.meter.ObserveCapture(audio.RMS(samples))

	if !c.enabled.Load() {
		return
	}

	if c.sourceEncoding.SampleRate != c.targetRate {
		samples = audio.Resample(samples, c.sourceEncoding.SampleRate, c.targetRate)
		pcm = audio.EncodeS16LE(samples)
	}

	c.sendMu.RLock()
	send := c.send
	c.sendMu.RUnlock()

	if err := send(pcm); err != nil {
		logger.Debug("Dropped capture chunk", "error", err)
	}
}
