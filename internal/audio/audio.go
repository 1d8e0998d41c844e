// Package audio streams a local clip into a voice connection: ffmpeg decodes
// it to PCM, gopus encodes 20ms opus frames and the frames go out on the
// connection's send channel.
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"layeh.com/gopus"
)

// Encoder turns one PCM frame into an opus packet. *gopus.Encoder
// implements it.
type Encoder interface {
	Encode(pcm []int16, frameSize, maxDataBytes int) ([]byte, error)
}

// Sink is where opus frames are sent.
type Sink interface {
	Speaking(on bool) error
	Frames() chan<- []byte
}

type voiceSink struct {
	vc *discordgo.VoiceConnection
}

// Voice adapts a discordgo voice connection to a Sink.
func Voice(vc *discordgo.VoiceConnection) Sink {
	return voiceSink{vc: vc}
}

func (v voiceSink) Speaking(on bool) error { return v.vc.Speaking(on) }
func (v voiceSink) Frames() chan<- []byte  { return v.vc.OpusSend }

// Player starts playbacks. The zero value uses ffmpeg and gopus.
type Player struct {
	Decode     Decoder
	NewEncoder func() (Encoder, error)
}

func newOpusEncoder() (Encoder, error) {
	return gopus.NewEncoder(sampleRate, channels, gopus.Audio)
}

// Play starts streaming path into sink and returns right away. Playback
// ends when the clip is exhausted, ctx is done or Stop is called.
func (p *Player) Play(ctx context.Context, sink Sink, path string) (*Playback, error) {
	newEnc := p.NewEncoder
	if newEnc == nil {
		newEnc = newOpusEncoder
	}
	decode := p.Decode
	if decode == nil {
		decode = FFmpeg
	}

	encoder, err := newEnc()
	if err != nil {
		return nil, fmt.Errorf("encoder error: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	pcm, cleanup, err := decode(ctx, path)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	pb := &Playback{
		done:   make(chan struct{}),
		cancel: cancel,
	}
	pb.playing.Store(true)

	go func() {
		defer close(pb.done)
		defer pb.playing.Store(false)
		defer cancel()
		defer cleanup()
		defer pcm.Close()

		if err := sink.Speaking(true); err != nil {
			pb.setErr(fmt.Errorf("speaking: %w", err))
			return
		}
		defer sink.Speaking(false)

		pb.setErr(stream(ctx, pcm, encoder, sink.Frames()))
	}()

	return pb, nil
}

// stream sends frames until pcm is exhausted. A short final frame counts as
// the end of the clip unless ctx was cancelled.
func stream(ctx context.Context, pcm io.Reader, encoder Encoder, out chan<- []byte) error {
	pcmBuf := make([]byte, frameSize*channels*2)
	intBuf := make([]int16, frameSize*channels)

	for {
		if _, err := io.ReadFull(pcm, pcmBuf); err != nil {
			// a killed decoder ends its pipe with EOF too
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}

		for i := range intBuf {
			intBuf[i] = int16(binary.LittleEndian.Uint16(pcmBuf[i*2 : i*2+2]))
		}

		opus, err := encoder.Encode(intBuf, frameSize, len(pcmBuf))
		if err != nil {
			return fmt.Errorf("encode error: %w", err)
		}

		select {
		case out <- opus:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Playback is one clip being streamed.
type Playback struct {
	done    chan struct{}
	cancel  context.CancelFunc
	playing atomic.Bool

	mu  sync.Mutex
	err error
}

func (p *Playback) Done() <-chan struct{} { return p.done }

func (p *Playback) Playing() bool { return p.playing.Load() }

// Err is nil for a clip played to the end, and valid once Done is closed.
func (p *Playback) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stop ends playback and waits for the stream to wind down.
func (p *Playback) Stop() {
	p.cancel()
	<-p.done
}

func (p *Playback) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}
