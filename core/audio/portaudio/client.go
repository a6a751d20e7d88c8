// Package portaudio plays and captures 16-bit mono audio through PortAudio's
// default devices.
package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-voice/core/audio"
)

type Client struct {
	bufferSize int
	stream     *portaudio.Stream

	in  []int16
	out []int16

	writeMu       sync.Mutex
	leftoverAudio []byte
	generation    int

	captureMu sync.Mutex
	capturing context.CancelFunc
}

var (
	_ audio.Player   = (*Client)(nil)
	_ audio.Capturer = (*Client)(nil)
)

// NewClient opens the default duplex stream with buffers of bufferSize
// samples.
func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	in := make([]int16, bufferSize)
	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 1, audio.DefaultSampleRate, bufferSize, in, out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to start portaudio stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		stream:     stream,
		in:         in,
		out:        out,
	}, nil
}

// StartCapture reads the microphone on its own goroutine until StopCapture
// is called or ctx is done.
func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()

	if c.capturing != nil {
		c.capturing()
	}
	ctx, cancel := context.WithCancel(ctx)
	c.capturing = cancel

	go func() {
		for ctx.Err() == nil {
			if err := c.stream.Read(); err != nil {
				logger.Warn("failed to read from portaudio stream", "error", err)
				continue
			}

			audioBuffer := bytes.Buffer{}
			if err := binary.Write(&audioBuffer, binary.LittleEndian, c.in); err != nil {
				logger.Warn("failed to encode captured audio", "error", err)
				continue
			}
			onAudio(audioBuffer.Bytes())
		}
	}()
	return nil
}

func (c *Client) StopCapture() error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()

	if c.capturing != nil {
		c.capturing()
		c.capturing = nil
	}
	return nil
}

// SendAudio plays audio, blocking until every full buffer has been written
// to the device. A partial buffer is kept until more audio arrives.
func (c *Client) SendAudio(audio []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	bufferSize := c.bufferSize * 2
	audio = append(c.leftoverAudio, audio...)
	for len(audio) >= bufferSize {
		if err := c.writeLocked(audio[:bufferSize]); err != nil {
			c.leftoverAudio = nil
			return err
		}
		audio = audio[bufferSize:]
	}
	c.leftoverAudio = append([]byte(nil), audio...)
	return nil
}

// Mark flushes the partial buffer, padded with silence, and calls back once
// everything sent before it has been written.
func (c *Client) Mark(name string, callback func(string)) error {
	c.writeMu.Lock()
	generation := c.generation
	var err error
	if len(c.leftoverAudio) > 0 {
		padded := make([]byte, c.bufferSize*2)
		copy(padded, c.leftoverAudio)
		c.leftoverAudio = nil
		err = c.writeLocked(padded)
	}
	c.writeMu.Unlock()

	go func() {
		c.writeMu.Lock()
		cleared := generation != c.generation
		c.writeMu.Unlock()
		if !cleared {
			callback(name)
		}
	}()
	return err
}

func (c *Client) ClearBuffer() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.leftoverAudio = nil
	c.generation++
}

func (c *Client) writeLocked(chunk []byte) error {
	if err := binary.Read(bytes.NewReader(chunk), binary.LittleEndian, c.out); err != nil {
		return fmt.Errorf("failed to decode playback audio: %w", err)
	}
	if err := c.stream.Write(); err != nil {
		return fmt.Errorf("failed to write to portaudio stream: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	_ = c.StopCapture()
	if err := c.stream.Close(); err != nil {
		return fmt.Errorf("failed to close portaudio stream: %w", err)
	}
	return portaudio.Terminate()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.EncodingLinear16,
	}
}
