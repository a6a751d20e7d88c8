package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

type captureClient struct {
	device *malgo.Device
	config malgo.DeviceConfig

	mu         sync.Mutex
	onAudio    func(audio []byte)
	generation int
	release    func() bool
}

func (c *captureClient) Init(audioContext *malgo.AllocatedContext, sampleRate uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	c.config = malgo.DefaultDeviceConfig(malgo.Capture)
	c.config.SampleRate = sampleRate
	c.config.Capture.Format = format
	c.config.Capture.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PerformanceProfile = malgo.LowLatency
	c.config.PeriodSizeInFrames = 480
	c.config.Periods = 3

	var err error
	c.device, err = malgo.InitDevice(audioContext.Context, c.config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}

			c.mu.Lock()
			onAudio := c.onAudio
			c.mu.Unlock()
			if onAudio != nil {
				// the device reuses pInput once the callback returns
				onAudio(append([]byte(nil), pInput[:n]...))
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	return nil
}

// Start delivers captured audio to onAudio until Stop is called or ctx is
// done. Starting again replaces the previous listener.
func (c *captureClient) Start(ctx context.Context, onAudio func(audio []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	if !c.device.IsStarted() {
		if err := c.device.Start(); err != nil {
			return fmt.Errorf("failed to start capture device: %w", err)
		}
	}

	if c.release != nil {
		c.release()
	}
	c.generation++
	generation := c.generation
	c.onAudio = onAudio
	c.release = context.AfterFunc(ctx, func() {
		if err := c.stopGeneration(generation); err != nil {
			logger.Warn("failed to stop capture", "error", err)
		}
	})

	return nil
}

func (c *captureClient) Stop() error {
	c.mu.Lock()
	if c.release != nil {
		c.release()
	}
	generation := c.generation
	c.mu.Unlock()

	return c.stopGeneration(generation)
}

// stopGeneration stops the capture unless a newer Start replaced it.
func (c *captureClient) stopGeneration(generation int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation || c.onAudio == nil {
		return nil
	}
	c.onAudio = nil
	c.release = nil

	if c.device == nil || !c.device.IsStarted() {
		return nil
	}
	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}

func (c *captureClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.release != nil {
		c.release()
		c.release = nil
	}
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}

	c.onAudio = nil
	return nil
}
