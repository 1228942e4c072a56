package http

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roomcast/roomcast-server/internal/core"
	"github.com/roomcast/roomcast-server/internal/proto"
)

// dispatch decodes one inbound envelope and applies the matching session
// transition. A decode failure is returned to the caller; domain failures are
// delivered by the session itself as error events.
func (h *WSHandler) dispatch(ctx context.Context, client *core.Client, inbound proto.Inbound) error {
	switch inbound.Type {
	case proto.InboundTypeJoinRoom:
		var data proto.JoinRoomData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return fmt.Errorf("decode joinRoom: %w", err)
		}
		h.session.Join(ctx, client, data.Username, data.Room)
	case proto.InboundTypeChatMessage:
		var data proto.ChatMessageData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return fmt.Errorf("decode chatMessage: %w", err)
		}
		h.session.SendMessage(ctx, client, data.Room, data.Username, data.Message)
	case proto.InboundTypeTyping:
		var data proto.TypingData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return fmt.Errorf("decode typing: %w", err)
		}
		h.session.Typing(client, data.Room, data.Username, data.IsTyping)
	case proto.InboundTypeLeaveRoom:
		var data proto.LeaveRoomData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return fmt.Errorf("decode leaveRoom: %w", err)
		}
		h.session.Leave(client, data.Username, data.Room)
	default:
		return fmt.Errorf("unknown event type %q", inbound.Type)
	}
	return nil
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventHistory:
		history := make([]proto.HistoryMessage, len(event.Messages))
		for i, m := range event.Messages {
			history[i] = proto.HistoryMessage{
				Username:  m.From,
				Message:   m.Text,
				Timestamp: m.CreatedAt.Unix(),
			}
		}
		return proto.Outbound{Type: proto.OutboundTypeChatHistory, Data: history}
	case core.EventOnlineUsers:
		users := event.Users
		if users == nil {
			users = []string{}
		}
		return proto.Outbound{Type: proto.OutboundTypeOnlineUsers, Data: users}
	case core.EventMessage:
		return proto.Outbound{
			Type: proto.OutboundTypeMessage,
			Data: proto.MessageData{
				Username:  event.Message.From,
				Message:   event.Message.Text,
				Timestamp: event.Message.CreatedAt.Unix(),
			},
		}
	case core.EventUserTyping:
		return proto.Outbound{
			Type: proto.OutboundTypeUserTyping,
			Data: proto.UserTypingData{Username: event.User, IsTyping: event.IsTyping},
		}
	case core.EventUserJoined:
		return proto.Outbound{Type: proto.OutboundTypeUserJoined, Data: event.Text}
	case core.EventUserLeft:
		return proto.Outbound{Type: proto.OutboundTypeUserLeft, Data: event.Text}
	case core.EventError:
		return proto.Outbound{Type: proto.OutboundTypeError, Data: event.Error.Message}
	default:
		return proto.Outbound{Type: proto.OutboundTypeError, Data: "unknown event"}
	}
}
