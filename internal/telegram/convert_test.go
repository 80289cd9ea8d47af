package telegram

import (
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danhigham/tgflux/internal/domain"
)

func TestSentMessageID(t *testing.T) {
	tests := []struct {
		name   string
		reply  tg.UpdatesClass
		want   int
		wantOK bool
	}{
		{"short sent", &tg.UpdateShortSentMessage{ID: 41}, 41, true},
		{
			"message id update",
			&tg.Updates{Updates: []tg.UpdateClass{
				&tg.UpdateReadHistoryOutbox{},
				&tg.UpdateMessageID{ID: 7, RandomID: 99},
			}},
			7, true,
		},
		{
			"new channel message",
			&tg.UpdatesCombined{Updates: []tg.UpdateClass{
				&tg.UpdateNewChannelMessage{Message: &tg.Message{ID: 12}},
			}},
			12, true,
		},
		{"empty updates", &tg.Updates{}, 0, false},
		{"too long", &tg.UpdatesTooLong{}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := sentMessageID(tt.reply)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConvertMessage(t *testing.T) {
	date := int(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Unix())

	t.Run("outgoing", func(t *testing.T) {
		m := convertMessage(&tg.Message{
			ID:      5,
			Out:     true,
			PeerID:  &tg.PeerUser{UserID: 100},
			Message: "hi",
			Date:    date,
		}, "me")
		assert.Equal(t, domain.MessageID("100/5"), m.ID)
		assert.Equal(t, domain.ChatID("100"), m.ChatID)
		assert.Equal(t, domain.UserID("me"), m.SenderID)
		assert.Equal(t, domain.MessageContent{Text: "hi"}, m.Content)
		assert.Equal(t, int64(date), m.Timestamp.Unix())
	})

	t.Run("direct message", func(t *testing.T) {
		m := convertMessage(&tg.Message{ID: 6, PeerID: &tg.PeerUser{UserID: 100}, Message: "yo"}, "me")
		assert.Equal(t, domain.UserID("100"), m.SenderID)
	})

	t.Run("group member", func(t *testing.T) {
		m := convertMessage(&tg.Message{
			ID:     9,
			PeerID: &tg.PeerChannel{ChannelID: 300},
			FromID: &tg.PeerUser{UserID: 42},
		}, "me")
		assert.Equal(t, domain.ChatID("300"), m.ChatID)
		assert.Equal(t, domain.UserID("42"), m.SenderID)
		assert.Equal(t, domain.MessageID("300/9"), m.ID)
	})

	t.Run("formatted", func(t *testing.T) {
		m := convertMessage(&tg.Message{
			ID:       1,
			PeerID:   &tg.PeerChat{ChatID: 7},
			Message:  "Hello world",
			Entities: []tg.MessageEntityClass{&tg.MessageEntityBold{Offset: 6, Length: 5}},
		}, "me")
		assert.Equal(t, domain.MessageContent{Text: "Hello **world**", Markdown: true}, m.Content)
	})
}

func TestChannelDeletes(t *testing.T) {
	got := channelDeletes(&tg.UpdateDeleteChannelMessages{ChannelID: 300, Messages: []int{1, 2}})
	assert.Equal(t, []domain.Update{
		domain.DeleteMessage{ID: "300/1"},
		domain.DeleteMessage{ID: "300/2"},
	}, got)
}

func TestClient_Directory(t *testing.T) {
	c := New(1, "hash", t.TempDir(), "me")

	assert.Equal(t, "100", c.ChatTitle("100"))
	assert.Equal(t, "42", c.UserName("42"))

	c.rememberEntities(tg.Entities{
		Users:    map[int64]*tg.User{42: {ID: 42, FirstName: "Ada", LastName: "Lovelace"}},
		Channels: map[int64]*tg.Channel{300: {ID: 300, Title: "Gophers", AccessHash: 5}},
	})
	assert.Equal(t, "Ada Lovelace", c.UserName("42"))
	assert.Equal(t, "Gophers", c.ChatTitle("300"))
	assert.Equal(t, &tg.InputPeerChannel{ChannelID: 300, AccessHash: 5}, c.peer("300"))
	assert.Equal(t, &tg.InputPeerUser{UserID: 42}, c.peer("42"))
}

func TestClient_DeliverWithoutConnection(t *testing.T) {
	c := New(1, "hash", t.TempDir(), "me", WithReadyTimeout(10*time.Millisecond))

	_, err := c.Deliver(t.Context(), domain.LocalMessage{ID: "m1", ChatID: "100", DeliveryAttemptsLeft: 2})
	require.ErrorIs(t, err, domain.ErrNoNetwork)
}
