package telegram

import (
	"strconv"
	"time"

	"github.com/gotd/td/tg"

	"github.com/danhigham/tgflux/internal/domain"
)

func peerChatID(p tg.PeerClass) domain.ChatID {
	switch p := p.(type) {
	case *tg.PeerUser:
		return formatID(p.UserID)
	case *tg.PeerChat:
		return formatID(p.ChatID)
	case *tg.PeerChannel:
		return formatID(p.ChannelID)
	default:
		return ""
	}
}

func inputPeerChatID(p tg.InputPeerClass) domain.ChatID {
	switch p := p.(type) {
	case *tg.InputPeerUser:
		return formatID(p.UserID)
	case *tg.InputPeerChat:
		return formatID(p.ChatID)
	case *tg.InputPeerChannel:
		return formatID(p.ChannelID)
	default:
		return ""
	}
}

func formatID(id int64) domain.ChatID {
	return domain.ChatID(strconv.FormatInt(id, 10))
}

// remoteID scopes a Telegram message id to its chat. Telegram numbers
// messages per chat, so the bare id is not unique across the store.
func remoteID(chat domain.ChatID, id int) domain.MessageID {
	return domain.MessageID(string(chat) + "/" + strconv.Itoa(id))
}

// sentMessageID finds the server id of a message in the reply to a send.
func sentMessageID(u tg.UpdatesClass) (int, bool) {
	var list []tg.UpdateClass
	switch u := u.(type) {
	case *tg.UpdateShortSentMessage:
		return u.ID, true
	case *tg.Updates:
		list = u.Updates
	case *tg.UpdatesCombined:
		list = u.Updates
	default:
		return 0, false
	}

	for _, upd := range list {
		switch upd := upd.(type) {
		case *tg.UpdateMessageID:
			return upd.ID, true
		case *tg.UpdateNewMessage:
			return upd.Message.GetID(), true
		case *tg.UpdateNewChannelMessage:
			return upd.Message.GetID(), true
		}
	}
	return 0, false
}

// convertMessage maps a Telegram message onto a confirmed message. Outgoing
// messages are attributed to local.
func convertMessage(msg *tg.Message, local domain.UserID) domain.RemoteMessage {
	chat := peerChatID(msg.PeerID)

	var sender domain.UserID
	switch {
	case msg.Out:
		sender = local
	case msg.FromID != nil:
		sender = domain.UserID(peerChatID(msg.FromID))
	default:
		// Direct messages and channel posts carry no FromID.
		sender = domain.UserID(chat)
	}

	content := domain.MessageContent{Text: msg.Message}
	if len(msg.Entities) > 0 {
		content = domain.MessageContent{
			Text:     EntitiesToMarkdown(msg.Message, msg.Entities),
			Markdown: true,
		}
	}

	return domain.RemoteMessage{
		ID:        remoteID(chat, msg.ID),
		SenderID:  sender,
		ChatID:    chat,
		Content:   content,
		Timestamp: time.Unix(int64(msg.Date), 0),
	}
}

// channelDeletes converts a channel deletion. Deletions outside channels
// carry no chat and cannot be mapped onto scoped ids.
func channelDeletes(u *tg.UpdateDeleteChannelMessages) []domain.Update {
	chat := formatID(u.ChannelID)
	out := make([]domain.Update, 0, len(u.Messages))
	for _, id := range u.Messages {
		out = append(out, domain.DeleteMessage{ID: remoteID(chat, id)})
	}
	return out
}

func formatUserName(u *tg.User) string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return u.Username
	default:
		return strconv.FormatInt(u.ID, 10)
	}
}
