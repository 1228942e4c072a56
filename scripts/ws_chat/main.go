package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/roomcast/roomcast-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "cli-user", "username")
	room := flag.String("room", "general", "room to join")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(v interface{}) {
		if writeErr := wsjson.Write(ctx, conn, v); writeErr != nil {
			cancel()
			log.Printf("send: %v", writeErr)
		}
	}

	joinPayload, err := json.Marshal(proto.JoinRoomData{Username: *user, Room: *room})
	if err != nil {
		return fmt.Errorf("marshal joinRoom: %w", err)
	}
	send(proto.Inbound{Type: proto.InboundTypeJoinRoom, Data: joinPayload})

	fmt.Printf("Connected to %s as %s in room %s\n", *addr, *user, *room)
	fmt.Println("Type messages and press Enter to send. /leave to leave the room. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *user, *room, send)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch outbound.Type {
		case proto.OutboundTypeMessage:
			var evt proto.MessageData
			if err := reencode(outbound.Data, &evt); err != nil {
				log.Printf("decode message: %v", err)
				continue
			}
			fmt.Printf("%s: %s\n", evt.Username, evt.Message)
		case proto.OutboundTypeChatHistory:
			var history []proto.HistoryMessage
			if err := reencode(outbound.Data, &history); err != nil {
				log.Printf("decode chatHistory: %v", err)
				continue
			}
			for _, m := range history {
				fmt.Printf("(history) %s: %s\n", m.Username, m.Message)
			}
		case proto.OutboundTypeOnlineUsers:
			var users []string
			if err := reencode(outbound.Data, &users); err != nil {
				log.Printf("decode onlineUsers: %v", err)
				continue
			}
			fmt.Printf("online: %s\n", strings.Join(users, ", "))
		case proto.OutboundTypeUserTyping:
			var evt proto.UserTypingData
			if err := reencode(outbound.Data, &evt); err != nil {
				log.Printf("decode userTyping: %v", err)
				continue
			}
			if evt.IsTyping {
				fmt.Printf("%s is typing...\n", evt.Username)
			}
		case proto.OutboundTypeUserJoined, proto.OutboundTypeUserLeft, proto.OutboundTypeError:
			fmt.Printf("* %v\n", outbound.Data)
		default:
			fmt.Printf("event=%s data=%v\n", outbound.Type, outbound.Data)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, user, room string, send func(interface{})) {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if line == "/leave" {
				payload, err := json.Marshal(proto.LeaveRoomData{Username: user, Room: room})
				if err != nil {
					log.Printf("marshal leaveRoom: %v", err)
					continue
				}
				send(proto.Inbound{Type: proto.InboundTypeLeaveRoom, Data: payload})
				continue
			}
			payload, err := json.Marshal(proto.ChatMessageData{Room: room, Username: user, Message: line})
			if err != nil {
				log.Printf("marshal chatMessage: %v", err)
				continue
			}
			send(proto.Inbound{Type: proto.InboundTypeChatMessage, Data: payload})
		}
	}
}

func reencode(data any, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
