package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/koscakluka/blurry-core/core/audio"
)

type captureClient struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig

	feed captureFeed

	mu sync.Mutex
}

// captureFeed routes device chunks to the most recent Stream caller. The
// session and the wake word recognizer share one microphone and hand it over
// whenever the session connects or disconnects; ownership is generation
// counted so an outgoing stream's stop cannot clobber the stream that took
// the device over in the meantime.
type captureFeed struct {
	mu         sync.Mutex
	generation uint64
	onAudio    func(audio []byte)
}

// take installs onAudio as the current consumer and returns the ownership
// token for the matching release.
func (f *captureFeed) take(onAudio func(audio []byte)) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.generation++
	f.onAudio = onAudio
	return f.generation
}

// release clears the consumer if generation still owns the feed. It reports
// whether the caller was the current owner.
func (f *captureFeed) release(generation uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if generation != f.generation {
		return false
	}
	f.onAudio = nil
	return true
}

func (f *captureFeed) deliver(chunk []byte) {
	f.mu.Lock()
	onAudio := f.onAudio
	f.mu.Unlock()

	if onAudio != nil {
		onAudio(chunk)
	}
}

func (c *captureClient) Init(audioContext *malgo.AllocatedContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	c.config = malgo.DefaultDeviceConfig(malgo.Capture)
	c.config.SampleRate = deviceSampleRate
	c.config.Capture.Format = format
	c.config.Capture.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PerformanceProfile = malgo.LowLatency
	c.config.PeriodSizeInFrames = 480
	c.config.Periods = 3

	c.audioContext = audioContext

	var err error
	c.device, err = malgo.InitDevice(c.audioContext.Context, c.config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}
			c.feed.deliver(pInput[:n])
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	return nil
}

// Stream feeds onAudio from the capture device and blocks until ctx is
// cancelled. A second Stream call takes the feed over from the first even
// while both are running; the first call's teardown then leaves the device
// alone.
func (c *captureClient) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	generation := c.feed.take(onAudio)
	if err := c.start(); err != nil {
		c.feed.release(generation)
		return err
	}

	<-ctx.Done()
	return c.stop(generation)
}

func (c *captureClient) start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	} else if c.device.IsStarted() {
		return nil
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	return nil
}

// stop releases the feed and stops the device, unless another stream has
// taken the feed over; then the device keeps running for the new owner.
func (c *captureClient) stop(generation uint64) error {
	if !c.feed.release(generation) {
		return nil
	}
	return c.stopDevice()
}

func (c *captureClient) stopDevice() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil || !c.device.IsStarted() {
		return nil
	}

	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}

	return nil
}

// Close stops capture regardless of which stream owns the feed. The device
// itself is released by the owning Client.
func (c *captureClient) Close() {
	c.feed.take(nil)
	_ = c.stopDevice()
}

func (c *captureClient) Uninit() error {
	c.feed.take(nil)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}

	return nil
}

func (c *captureClient) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: deviceSampleRate,
		Format:     audio.EncodingLinear16,
	}
}
