// Package telegram delivers messages and streams updates through the
// Telegram MTProto API using gotd/td.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/query/dialogs"
	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"

	"github.com/danhigham/tgflux/internal/domain"
)

// ErrUnauthorized is returned by Subscribe when the stored session has not
// been logged in. Logging in is done outside this program.
var ErrUnauthorized = errors.New("telegram session is not authorized")

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger, named "telegram".
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l.Named("telegram")
	}
}

// WithReadyTimeout bounds how long Deliver waits for a connection before
// failing with domain.ErrNoNetwork.
func WithReadyTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.readyTimeout = d
	}
}

// Client is a domain.Transport and domain.Directory backed by one Telegram
// account.
type Client struct {
	apiID        int
	apiHash      string
	sessionDir   string
	localUser    domain.UserID
	logger       *zap.Logger
	readyTimeout time.Duration

	mu     sync.Mutex
	sender *message.Sender
	ready  chan struct{}
	peers  map[domain.ChatID]tg.InputPeerClass
	titles map[domain.ChatID]string
	names  map[domain.UserID]string
}

// New returns a Client for the given API credentials. The session is kept
// under sessionDir. Nothing connects until Subscribe is called.
func New(apiID int, apiHash, sessionDir string, localUser domain.UserID, opts ...Option) *Client {
	c := &Client{
		apiID:        apiID,
		apiHash:      apiHash,
		sessionDir:   sessionDir,
		localUser:    localUser,
		logger:       zap.NewNop(),
		readyTimeout: 10 * time.Second,
		ready:        make(chan struct{}),
		peers:        make(map[domain.ChatID]tg.InputPeerClass),
		titles:       make(map[domain.ChatID]string),
		names:        make(map[domain.UserID]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe connects, hands over the last message of every dialog, then
// streams new and deleted messages until ctx is done.
func (c *Client) Subscribe(ctx context.Context, handle func([]domain.Update)) error {
	dispatcher := tg.NewUpdateDispatcher()
	onMessage := func(e tg.Entities, m tg.MessageClass) {
		msg, ok := m.(*tg.Message)
		if !ok {
			return
		}
		c.rememberEntities(e)
		handle([]domain.Update{domain.NewMessage{Message: convertMessage(msg, c.localUser)}})
	}
	dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		onMessage(e, u.Message)
		return nil
	})
	dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		onMessage(e, u.Message)
		return nil
	})
	dispatcher.OnDeleteChannelMessages(func(ctx context.Context, e tg.Entities, u *tg.UpdateDeleteChannelMessages) error {
		handle(channelDeletes(u))
		return nil
	})

	gaps := updates.New(updates.Config{
		Handler: dispatcher,
		Logger:  c.logger.Named("gaps"),
	})
	client := telegram.NewClient(c.apiID, c.apiHash, telegram.Options{
		Logger:         c.logger,
		UpdateHandler:  gaps,
		SessionStorage: &session.FileStorage{Path: filepath.Join(c.sessionDir, "session.json")},
	})

	return client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("auth status: %w", err)
		}
		if !status.Authorized || status.User == nil {
			return ErrUnauthorized
		}
		c.rememberUser(c.localUser, formatUserName(status.User))

		api := client.API()
		seed, err := c.loadDialogs(ctx, api)
		if err != nil {
			c.logger.Warn("Failed to load dialogs", zap.Error(err))
		} else if len(seed) > 0 {
			handle(seed)
		}

		c.setSender(message.NewSender(api))
		defer c.setSender(nil)
		c.logger.Info("connected", zap.Int64("user_id", status.User.ID), zap.Int("dialogs", len(seed)))

		return gaps.Run(ctx, api, status.User.ID, updates.AuthOptions{})
	})
}

// Deliver sends msg as plain text. The confirmed copy carries the chat-scoped
// Telegram id, or the local id when the reply does not name one.
func (c *Client) Deliver(ctx context.Context, msg domain.LocalMessage) (domain.RemoteMessage, error) {
	sender, err := c.waitSender(ctx)
	if err != nil {
		return domain.RemoteMessage{}, err
	}
	peer := c.peer(msg.ChatID)
	if peer == nil {
		return domain.RemoteMessage{}, fmt.Errorf("unknown chat %q", msg.ChatID)
	}

	reply, err := sender.To(peer).Text(ctx, msg.Content.Text)
	if err != nil {
		return domain.RemoteMessage{}, fmt.Errorf("send message: %w", err)
	}

	id := msg.ID
	if n, ok := sentMessageID(reply); ok {
		id = remoteID(msg.ChatID, n)
	}
	return msg.Confirmed(id, time.Now()), nil
}

// ChatTitle returns the dialog title seen for id, or id itself.
func (c *Client) ChatTitle(id domain.ChatID) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.titles[id]; ok {
		return t
	}
	return string(id)
}

// UserName returns the display name seen for id, or id itself.
func (c *Client) UserName(id domain.UserID) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.names[id]; ok {
		return n
	}
	return string(id)
}

func (c *Client) loadDialogs(ctx context.Context, api *tg.Client) ([]domain.Update, error) {
	iter := dialogs.NewQueryBuilder(api).GetDialogs().BatchSize(100).Iter()

	var seed []domain.Update
	for iter.Next(ctx) {
		elem := iter.Value()
		chat := inputPeerChatID(elem.Peer)
		if chat == "" {
			continue
		}
		c.rememberChat(chat, elem.Peer, dialogTitle(elem))

		if msg, ok := elem.Last.(*tg.Message); ok {
			seed = append(seed, domain.NewMessage{Message: convertMessage(msg, c.localUser)})
		}
	}
	if err := iter.Err(); err != nil {
		return seed, fmt.Errorf("iterate dialogs: %w", err)
	}
	return seed, nil
}

func dialogTitle(elem dialogs.Elem) string {
	switch p := elem.Dialog.GetPeer().(type) {
	case *tg.PeerUser:
		if u, ok := elem.Entities.User(p.UserID); ok {
			return formatUserName(u)
		}
	case *tg.PeerChat:
		if ch, ok := elem.Entities.Chat(p.ChatID); ok {
			return ch.Title
		}
	case *tg.PeerChannel:
		if ch, ok := elem.Entities.Channel(p.ChannelID); ok {
			return ch.Title
		}
	}
	return ""
}

func (c *Client) setSender(s *message.Sender) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s == nil {
		c.sender = nil
		c.ready = make(chan struct{})
		return
	}
	c.sender = s
	close(c.ready)
}

// waitSender blocks until Subscribe has connected, up to readyTimeout.
func (c *Client) waitSender(ctx context.Context) (*message.Sender, error) {
	c.mu.Lock()
	sender, ready := c.sender, c.ready
	c.mu.Unlock()
	if sender != nil {
		return sender, nil
	}

	timer := time.NewTimer(c.readyTimeout)
	defer timer.Stop()
	select {
	case <-ready:
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sender == nil {
		return nil, fmt.Errorf("%w: not connected to telegram", domain.ErrNoNetwork)
	}
	return c.sender, nil
}

func (c *Client) peer(id domain.ChatID) tg.InputPeerClass {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peers[id]
}

func (c *Client) rememberChat(id domain.ChatID, peer tg.InputPeerClass, title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peers[id] = peer
	if title != "" {
		c.titles[id] = title
	}
}

func (c *Client) rememberUser(id domain.UserID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names[id] = name
}

// rememberEntities records names carried alongside an update, and peers for
// chats that were not among the loaded dialogs.
func (c *Client) rememberEntities(e tg.Entities) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, u := range e.Users {
		chat := formatID(id)
		c.names[domain.UserID(chat)] = formatUserName(u)
		c.addPeerLocked(chat, &tg.InputPeerUser{UserID: u.ID, AccessHash: u.AccessHash})
	}
	for id, ch := range e.Chats {
		c.titles[formatID(id)] = ch.Title
		c.addPeerLocked(formatID(id), &tg.InputPeerChat{ChatID: ch.ID})
	}
	for id, ch := range e.Channels {
		c.titles[formatID(id)] = ch.Title
		c.addPeerLocked(formatID(id), &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash})
	}
}

func (c *Client) addPeerLocked(id domain.ChatID, peer tg.InputPeerClass) {
	if _, ok := c.peers[id]; !ok {
		c.peers[id] = peer
	}
}
