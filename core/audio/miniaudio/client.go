// Package miniaudio plays and captures audio through the system's default
// devices.
package miniaudio

import (
	"context"
	"errors"
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-voice/core/audio"
)

// Client is both an audio.Player and an audio.Capturer.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	sampleRate   int
	playbackClient
	captureClient
}

var (
	_ audio.Player   = (*Client)(nil)
	_ audio.Capturer = (*Client)(nil)
)

func NewClient() (*Client, error) {
	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) { logger.Debug("malgo", "message", message) },
	)
	if err != nil {
		return nil, fmt.Errorf("malgo context init failed: %w", err)
	}

	client := Client{
		audioContext: audioCtx,
		sampleRate:   audio.DefaultSampleRate,
	}

	if err := client.playbackClient.Init(audioCtx, uint32(client.sampleRate)); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}

	if err := client.playbackClient.Start(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	if err := client.captureClient.Init(audioCtx, uint32(client.sampleRate)); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return &client, nil
}

func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	return c.captureClient.Start(ctx, onAudio)
}

func (c *Client) StopCapture() error {
	return c.captureClient.Stop()
}

func (c *Client) StartPlayback(_ context.Context) error {
	return c.playbackClient.Start()
}

func (c *Client) StopPlayback() error {
	return c.playbackClient.Stop()
}

func (c *Client) Close() error {
	err := errors.Join(c.captureClient.Uninit(), c.playbackClient.Uninit())
	if uninitErr := c.audioContext.Uninit(); uninitErr != nil {
		err = errors.Join(err, fmt.Errorf("failed to uninitialize audio context: %w", uninitErr))
	}
	c.audioContext.Free()
	return err
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: c.sampleRate,
		Format:     audio.EncodingLinear16,
	}
}
