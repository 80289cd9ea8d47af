package state_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/danhigham/tgflux/internal/domain"
	"github.com/danhigham/tgflux/internal/metrics"
	"github.com/danhigham/tgflux/internal/state"
	"github.com/danhigham/tgflux/internal/store"
)

// fakeTransport fails the first `failures` deliveries (all of them when
// failures is negative). When gate is set, every delivery waits on it.
type fakeTransport struct {
	mu       sync.Mutex
	failures int
	calls    []domain.LocalMessage
	gate     chan struct{}
	remoteID func(domain.LocalMessage) domain.MessageID

	batches [][]domain.Update
	subErr  error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (f *fakeTransport) Deliver(ctx context.Context, msg domain.LocalMessage) (domain.RemoteMessage, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return domain.RemoteMessage{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msg)
	if f.failures != 0 {
		if f.failures > 0 {
			f.failures--
		}
		return domain.RemoteMessage{}, domain.ErrNoNetwork
	}
	id := msg.ID
	if f.remoteID != nil {
		id = f.remoteID(msg)
	}
	return msg.Confirmed(id, msg.Timestamp), nil
}

func (f *fakeTransport) Subscribe(ctx context.Context, handle func([]domain.Update)) error {
	for _, b := range f.batches {
		handle(b)
	}
	if f.subErr != nil {
		return f.subErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeTransport) Calls() []domain.LocalMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.LocalMessage(nil), f.calls...)
}

var sendHello = state.SendMessage{
	ChatID:  "kirill-natalia",
	Content: domain.MessageContent{Text: "Hello"},
}

type harness struct {
	store *state.Store

	mu      sync.Mutex
	history [][]domain.Message
}

func startApp(t *testing.T, tr domain.Transport, opts ...state.ReducerOption) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	h := &harness{}

	opts = append([]state.ReducerOption{state.WithLogger(logger)}, opts...)
	r := state.NewReducer(tr, opts...)
	h.store = state.NewStore(state.New("kirill"), r,
		store.WithLogger[state.AppState, state.Action](logger),
		store.WithOnChange[state.AppState, state.Action](func(s state.AppState) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.history = append(h.history, s.Messages)
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.store.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) flush(t *testing.T) state.AppState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.store.Flush(ctx))
	return h.store.State()
}

// transitions lists the distinct single-message states the store went through.
func (h *harness) transitions() []domain.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.Message
	for _, msgs := range h.history {
		if len(msgs) != 1 {
			continue
		}
		if len(out) > 0 && out[len(out)-1] == msgs[0] {
			continue
		}
		out = append(out, msgs[0])
	}
	return out
}

func onlyMessage(s state.AppState) (domain.Message, bool) {
	if len(s.Messages) != 1 {
		return nil, false
	}
	return s.Messages[0], true
}

func TestSendMessage_AddedAsLocalBeforeDelivery(t *testing.T) {
	tr := newFakeTransport()
	tr.gate = make(chan struct{})
	h := startApp(t, tr)

	h.store.Dispatch(sendHello)
	s := h.flush(t)

	require.Len(t, s.Messages, 1)
	local, ok := s.Messages[0].(domain.LocalMessage)
	require.True(t, ok, "expected a local message, got %T", s.Messages[0])
	assert.Equal(t, domain.DefaultDeliveryAttempts, local.DeliveryAttemptsLeft)
	assert.Equal(t, domain.UserID("kirill"), local.SenderID)

	close(tr.gate)
}

func TestSendMessage_DeliveredOnFirstAttempt(t *testing.T) {
	h := startApp(t, newFakeTransport())

	h.store.Dispatch(sendHello)

	require.Eventually(t, func() bool {
		m, ok := onlyMessage(h.store.State())
		_, isRemote := m.(domain.RemoteMessage)
		return ok && isRemote
	}, time.Second, 5*time.Millisecond)

	r := h.store.State().Messages[0].(domain.RemoteMessage)
	assert.Equal(t, sendHello.Content, r.Content)
	assert.Equal(t, sendHello.ChatID, r.ChatID)
	assert.Equal(t, domain.UserID("kirill"), r.SenderID)
}

func TestSendMessage_RetriesThenDelivers(t *testing.T) {
	tests := []struct {
		name        string
		maxAttempts int
		failures    int
	}{
		{name: "one failure out of two", maxAttempts: 2, failures: 1},
		{name: "two failures out of three", maxAttempts: 3, failures: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newFakeTransport()
			tr.failures = tt.failures
			h := startApp(t, tr, state.WithMaxAttempts(tt.maxAttempts))

			h.store.Dispatch(sendHello)
			require.Eventually(t, func() bool {
				m, ok := onlyMessage(h.store.State())
				_, isRemote := m.(domain.RemoteMessage)
				return ok && isRemote
			}, time.Second, 5*time.Millisecond)
			h.flush(t)

			steps := h.transitions()
			require.Len(t, steps, tt.failures+2)
			for i := 0; i <= tt.failures; i++ {
				local, ok := steps[i].(domain.LocalMessage)
				require.True(t, ok, "step %d is %T", i, steps[i])
				assert.Equal(t, tt.maxAttempts-i, local.DeliveryAttemptsLeft)
			}
			assert.IsType(t, domain.RemoteMessage{}, steps[len(steps)-1])
			assert.Len(t, tr.Calls(), tt.failures+1)
		})
	}
}

func TestSendMessage_AttemptsNeverBelowZero(t *testing.T) {
	tr := newFakeTransport()
	tr.failures = -1
	h := startApp(t, tr)

	h.store.Dispatch(sendHello)
	require.Eventually(t, func() bool {
		m, ok := onlyMessage(h.store.State())
		l, isLocal := m.(domain.LocalMessage)
		return ok && isLocal && l.Failed()
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	s := h.flush(t)
	require.Len(t, s.Messages, 1)
	local, ok := s.Messages[0].(domain.LocalMessage)
	require.True(t, ok, "undelivered message must stay local")
	assert.Equal(t, 0, local.DeliveryAttemptsLeft)
	assert.Len(t, tr.Calls(), domain.DefaultDeliveryAttempts)
	for _, m := range h.transitions() {
		if l, ok := m.(domain.LocalMessage); ok {
			assert.GreaterOrEqual(t, l.DeliveryAttemptsLeft, 0)
		}
	}
}

func TestSendMessage_CreatesChat(t *testing.T) {
	tr := newFakeTransport()
	tr.gate = make(chan struct{})
	defer close(tr.gate)
	h := startApp(t, tr)

	h.store.Dispatch(state.ApplyUpdates{Updates: []domain.Update{
		domain.NewMessage{Message: remote("a", "other-chat")},
	}})
	before := h.flush(t)
	require.Len(t, before.Chats, 1)

	h.store.Dispatch(sendHello)
	after := h.flush(t)

	assert.Len(t, after.Chats, 2)
	assert.True(t, after.HasChat(sendHello.ChatID))
}

func TestSendMessage_RemoteIDDiffers(t *testing.T) {
	tr := newFakeTransport()
	tr.remoteID = func(m domain.LocalMessage) domain.MessageID {
		return "srv-" + m.ID
	}
	h := startApp(t, tr)

	h.store.Dispatch(sendHello)

	require.Eventually(t, func() bool {
		m, ok := onlyMessage(h.store.State())
		_, isRemote := m.(domain.RemoteMessage)
		return ok && isRemote
	}, time.Second, 5*time.Millisecond)

	calls := tr.Calls()
	require.Len(t, calls, 1)
	localID := calls[0].ID
	assert.Equal(t, "srv-"+localID, h.store.State().Messages[0].MessageID())
	_, found := h.store.State().Message(localID)
	assert.False(t, found)
}

func TestListener_NotifiedOncePerDispatch(t *testing.T) {
	h := startApp(t, newFakeTransport())

	calls := 0
	h.store.Dispatch(state.AddListener{ChatID: "chat-a", Notify: func() { calls++ }})

	h.store.Dispatch(state.ApplyUpdates{Updates: []domain.Update{
		domain.NewMessage{Message: remote("b1", "chat-b")},
	}})
	h.flush(t)
	assert.Equal(t, 0, calls)

	h.store.Dispatch(state.ApplyUpdates{Updates: []domain.Update{
		domain.NewMessage{Message: remote("a1", "chat-a")},
		domain.NewMessage{Message: remote("a2", "chat-a")},
	}})
	h.flush(t)
	assert.Equal(t, 1, calls)
}

func TestListener_NeverCalledAfterReplaced(t *testing.T) {
	h := startApp(t, newFakeTransport())

	const rounds = 200
	var calls, stale int
	first := func() {
		calls++
		if l := h.store.State().Listener; l == nil || l.ChatID != "chat-a" {
			stale++
		}
	}
	for i := 0; i < rounds; i++ {
		h.store.Dispatch(state.AddListener{ChatID: "chat-a", Notify: first})
		h.store.Dispatch(state.ApplyUpdates{Updates: []domain.Update{
			domain.NewMessage{Message: remote(domain.MessageID(fmt.Sprintf("a%d", i)), "chat-a")},
		}})
		h.store.Dispatch(state.AddListener{ChatID: "chat-b", Notify: func() {}})
	}
	h.flush(t)

	assert.Equal(t, rounds, calls)
	assert.Zero(t, stale, "listener ran while another one was registered")
}

func TestConnect_AppliesRemoteBatches(t *testing.T) {
	tr := newFakeTransport()
	tr.batches = [][]domain.Update{
		{domain.NewMessage{Message: remote("r1", "chat-a")}},
		nil,
		{domain.NewMessage{Message: remote("r2", "chat-b")}},
	}
	h := startApp(t, tr)

	h.store.Dispatch(state.Connect{})
	require.Eventually(t, func() bool {
		return len(h.store.State().Messages) == 2
	}, time.Second, 5*time.Millisecond)

	s := h.flush(t)
	assert.True(t, s.Connected)
	assert.Equal(t, []domain.ChatID{"chat-a", "chat-b"}, s.Chats)
}

func TestConnect_SubscriptionFailureDisconnects(t *testing.T) {
	tr := newFakeTransport()
	tr.subErr = errors.New("session revoked")
	h := startApp(t, tr)

	h.store.Dispatch(state.Connect{})
	require.Eventually(t, func() bool {
		return h.store.State().DisconnectedBy != ""
	}, time.Second, 5*time.Millisecond)

	s := h.flush(t)
	assert.False(t, s.Connected)
	assert.Equal(t, "session revoked", s.DisconnectedBy)
}

func TestDelivery_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	tr := newFakeTransport()
	tr.failures = -1
	h := startApp(t, tr, state.WithMetrics(metrics.New(reg)))

	h.store.Dispatch(sendHello)

	expected := `
# HELP tgflux_delivery_attempts_total Message delivery attempts, by result.
# TYPE tgflux_delivery_attempts_total counter
tgflux_delivery_attempts_total{result="failed"} 2
# HELP tgflux_delivery_exhausted_total Messages left undelivered after all attempts failed.
# TYPE tgflux_delivery_exhausted_total counter
tgflux_delivery_exhausted_total 1
`
	require.Eventually(t, func() bool {
		return testutil.GatherAndCompare(reg, strings.NewReader(expected),
			"tgflux_delivery_attempts_total", "tgflux_delivery_exhausted_total") == nil
	}, time.Second, 5*time.Millisecond)
}
