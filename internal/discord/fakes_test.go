package discord

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"voice-ambush/internal/audio"
)

type mockAPI struct {
	mu      sync.Mutex
	members map[string]*discordgo.Member
	fetched []string
	moves   []moveCall
	moveErr error
}

type moveCall struct {
	guildID   string
	userID    string
	channelID *string
}

func (m *mockAPI) GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetched = append(m.fetched, userID)
	if mem, ok := m.members[userID]; ok {
		return mem, nil
	}
	return nil, errors.New("HTTP 404 Not Found")
}

func (m *mockAPI) GuildMemberMove(guildID string, userID string, channelID *string, options ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.moveErr != nil {
		return m.moveErr
	}
	m.moves = append(m.moves, moveCall{guildID, userID, channelID})
	return nil
}

type mockConn struct {
	mu          sync.Mutex
	frames      chan []byte
	disconnects int
	closes      int
	disconnect  error
}

func newMockConn() *mockConn {
	return &mockConn{frames: make(chan []byte, 64)}
}

func (c *mockConn) Speaking(bool) error   { return nil }
func (c *mockConn) Frames() chan<- []byte { return c.frames }

func (c *mockConn) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

func (c *mockConn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *mockConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
}

func (c *mockConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	return c.disconnect
}

type fakeEncoder struct{}

func (fakeEncoder) Encode(pcm []int16, frameSize, maxDataBytes int) ([]byte, error) {
	return []byte{1}, nil
}

// silentPlayer plays frames of zeros without ffmpeg or libopus.
func silentPlayer(frames int) *audio.Player {
	return &audio.Player{
		Decode: func(ctx context.Context, path string) (io.ReadCloser, func(), error) {
			return io.NopCloser(io.LimitReader(zeroReader{}, int64(frames*960*2*2))), func() {}, nil
		},
		NewEncoder: func() (audio.Encoder, error) { return fakeEncoder{}, nil },
	}
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func newTestGateway(state *discordgo.State, api *mockAPI) *Gateway {
	nop := zerolog.Nop()
	return &Gateway{
		api:    api,
		state:  state,
		player: silentPlayer(2),
		log:    &nop,
		join: func(guildID, channelID string) (voiceConn, error) {
			return newMockConn(), nil
		},
		lookup: func(guildID string) (voiceConn, string) { return nil, "" },
	}
}
