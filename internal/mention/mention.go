// Package mention answers messages that mention the bot with a random image.
package mention

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"voice-ambush/internal/media"
)

const notFoundReply = "Image not found."

// Sender is the part of *discordgo.Session the responder needs.
type Sender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Responder struct {
	Sender Sender
	Images *media.Library
	Rand   media.Rand
	// Rate caps replies per channel per second. 0 means unlimited.
	Rate float64

	// Open is swapped in tests.
	Open func(path string) (io.ReadCloser, error)
	Log  *zerolog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// Handle replies to m if it mentions selfID and was written by a human.
// It reports whether a reply was sent.
func (r *Responder) Handle(selfID string, m *discordgo.Message) (bool, error) {
	if m.Author == nil || m.Author.ID == selfID || m.Author.Bot {
		return false, nil
	}
	if !slices.ContainsFunc(m.Mentions, func(u *discordgo.User) bool { return u.ID == selfID }) {
		return false, nil
	}

	logger := r.logger().With().Str("channel_id", m.ChannelID).Str("user_id", m.Author.ID).Logger()
	if !r.allow(m.ChannelID) {
		logger.Debug().Msg("Mention reply rate limited")
		return false, nil
	}

	msg := &discordgo.MessageSend{Reference: m.Reference()}

	var path string
	ok := false
	if r.Images != nil {
		path, ok = r.Images.PickShuffled(r.rand())
	}
	if ok {
		f, err := r.open(path)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Image unavailable")
		} else {
			defer f.Close()
			msg.Files = []*discordgo.File{{Name: filepath.Base(path), Reader: f}}
		}
	}
	if len(msg.Files) == 0 {
		msg.Content = notFoundReply
	}

	if _, err := r.Sender.ChannelMessageSendComplex(m.ChannelID, msg); err != nil {
		return false, fmt.Errorf("reply in %s: %w", m.ChannelID, err)
	}
	logger.Debug().Str("path", path).Msg("Replied to mention")
	return true, nil
}

func (r *Responder) allow(channelID string) bool {
	if r.Rate <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limiters == nil {
		r.limiters = make(map[string]*rate.Limiter)
	}
	lim, ok := r.limiters[channelID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(r.Rate), 1)
		r.limiters[channelID] = lim
	}
	return lim.Allow()
}

func (r *Responder) open(path string) (io.ReadCloser, error) {
	if r.Open != nil {
		return r.Open(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r *Responder) rand() media.Rand {
	if r.Rand != nil {
		return r.Rand
	}
	return media.DefaultRand
}

func (r *Responder) logger() *zerolog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return &log.Logger
}
