// Package loopback is an in-process transport. It confirms sent messages after
// a fixed latency, can fail a scripted number of deliveries, and can answer
// each delivered message with an echo from a fake peer.
package loopback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danhigham/tgflux/internal/domain"
)

// EchoUser is the sender of echo replies.
const EchoUser domain.UserID = "echo"

const minEchoDelay = 5 * time.Millisecond

// Option configures a Transport.
type Option func(*Transport)

// WithLatency delays every delivery by d.
func WithLatency(d time.Duration) Option {
	return func(t *Transport) {
		t.latency = d
	}
}

// WithFailures makes the next n deliveries fail with domain.ErrNoNetwork.
func WithFailures(n int) Option {
	return func(t *Transport) {
		t.failures = n
	}
}

// WithEcho answers every delivered message with a remote reply.
func WithEcho() Option {
	return func(t *Transport) {
		t.echo = true
	}
}

// WithEchoDelay sets how long after a confirmed delivery the echo is
// queued. It defaults to the delivery latency.
func WithEchoDelay(d time.Duration) Option {
	return func(t *Transport) {
		t.echoDelay = d
	}
}

// WithChats greets each chat once a subscriber connects, so the chats exist
// before anything has been sent.
func WithChats(chats ...domain.ChatID) Option {
	return func(t *Transport) {
		t.chats = chats
	}
}

// WithLogger sets the logger, named "loopback".
func WithLogger(l *zap.Logger) Option {
	return func(t *Transport) {
		t.logger = l.Named("loopback")
	}
}

// Transport is an in-memory domain.Transport that confirms deliveries
// locally, optionally failing some and echoing the rest.
type Transport struct {
	latency   time.Duration
	echo      bool
	echoDelay time.Duration
	chats     []domain.ChatID
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	failures int
	seq      int
	pending  [][]domain.Update
	wake     chan struct{}
}

// New returns a Transport with no latency, no scripted failures and no echo.
func New(opts ...Option) *Transport {
	t := &Transport{
		logger: zap.NewNop(),
		now:    time.Now,
		wake:   make(chan struct{}, 1),
	}
	t.echoDelay = -1
	for _, opt := range opts {
		opt(t)
	}
	if t.echoDelay < 0 {
		t.echoDelay = t.latency
	}
	return t
}

// SetFailures replaces the number of deliveries still scripted to fail.
func (t *Transport) SetFailures(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = n
}

// Deliver confirms msg under its own id after the configured latency.
func (t *Transport) Deliver(ctx context.Context, msg domain.LocalMessage) (domain.RemoteMessage, error) {
	if err := t.sleep(ctx); err != nil {
		return domain.RemoteMessage{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failures > 0 {
		t.failures--
		t.logger.Debug("dropping message", zap.String("message_id", string(msg.ID)), zap.Int("failures_left", t.failures))
		return domain.RemoteMessage{}, domain.ErrNoNetwork
	}

	confirmed := msg.Confirmed(msg.ID, t.now())
	if t.echo {
		t.seq++
		reply := domain.RemoteMessage{
			ID:        domain.MessageID(fmt.Sprintf("echo-%d", t.seq)),
			SenderID:  EchoUser,
			ChatID:    msg.ChatID,
			Content:   msg.Content,
			Timestamp: t.now(),
		}
		// The reply is queued only after the caller has had the confirmation
		// for echoDelay, so it lands below the message it answers.
		time.AfterFunc(max(t.echoDelay, minEchoDelay), func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			t.pushLocked([]domain.Update{domain.NewMessage{Message: reply}})
		})
	}
	return confirmed, nil
}

// Subscribe greets the configured chats, then hands over echo replies until
// ctx is done.
func (t *Transport) Subscribe(ctx context.Context, handle func([]domain.Update)) error {
	if len(t.chats) > 0 {
		greetings := make([]domain.Update, 0, len(t.chats))
		for _, chat := range t.chats {
			greetings = append(greetings, domain.NewMessage{Message: domain.RemoteMessage{
				ID:        domain.MessageID("welcome-" + string(chat)),
				SenderID:  EchoUser,
				ChatID:    chat,
				Content:   domain.MessageContent{Text: "Welcome to " + string(chat)},
				Timestamp: t.now(),
			}})
		}
		handle(greetings)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.wake:
		}
		for _, batch := range t.take() {
			handle(batch)
		}
	}
}

// ChatTitle renders a chat id as a channel name.
func (t *Transport) ChatTitle(id domain.ChatID) string {
	return "#" + string(id)
}

// UserName returns the user id unchanged.
func (t *Transport) UserName(id domain.UserID) string {
	return string(id)
}

func (t *Transport) pushLocked(batch []domain.Update) {
	t.pending = append(t.pending, batch)
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Transport) take() [][]domain.Update {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.pending
	t.pending = nil
	return out
}

func (t *Transport) sleep(ctx context.Context) error {
	if t.latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(t.latency)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
