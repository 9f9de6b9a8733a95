package miniaudio

import (
	"fmt"

	"github.com/gen2brain/malgo"
)

// deviceSampleRate is the native rate for both devices. Capture is
// downsampled to the service rate upstream; playback is resampled to this
// rate before it reaches the device.
const deviceSampleRate = 48000

// Client owns the shared miniaudio context plus one capture and one playback
// device. The Capture and Playback facets plug into the session directly.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext

	capture  captureClient
	playback playbackClient
}

func NewClient() (*Client, error) {
	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) {},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize miniaudio context: %w", err)
	}

	client := Client{audioContext: audioCtx}

	if err := client.capture.Init(audioCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	if err := client.playback.Init(audioCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}
	if err := client.playback.Start(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	return &client, nil
}

// Capture returns the microphone facet.
func (c *Client) Capture() *captureClient { return &c.capture }

// Playback returns the speaker facet.
func (c *Client) Playback() *playbackClient { return &c.playback }

// Close releases both devices and the shared context.
func (c *Client) Close() {
	_ = c.capture.Uninit()
	_ = c.playback.Uninit()
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
}
