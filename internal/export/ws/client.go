package ws

import (
	"context"
	"errors"

	"github.com/gorilla/websocket"

	"github.com/wiseops/wise/internal/event"
)

// runClient drives one authenticated connection: a read pump parses and
// dispatches inbound requests while this goroutine forwards bus messages
// outward. Either side failing ends the connection.
func (s *Server) runClient(ctx context.Context, conn *websocket.Conn, handle AuthHandle) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub := s.bus.Subscribe()
	defer sub.Unsubscribe()

	go s.readPump(ctx, cancel, conn, handle)

	for {
		msg, err := sub.Recv(ctx)
		if err != nil {
			var lagged *event.LaggedError
			if errors.As(err, &lagged) {
				s.log.Warn("websocket client lagging",
					"token", handle.Name, "missed", lagged.Missed)
				continue
			}
			return
		}

		// Events are gated by the read permission; responses and
		// authentication confirmations always pass.
		if _, isEvent := msg.(event.RconMessage); isEvent && !handle.Perms.ReadRconEvents {
			continue
		}

		if err := s.writeMessage(conn, msg); err != nil {
			s.log.Debug("websocket send failed, closing",
				"token", handle.Name, "error", err)
			return
		}
	}
}

// readPump reads client frames until the connection dies. Malformed
// frames are ignored; permitted requests are dispatched concurrently so a
// slow command does not block the next frame.
func (s *Server) readPump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, handle AuthHandle) {
	defer cancel()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		msg, err := event.UnmarshalClientWsMessage(data)
		if err != nil {
			s.log.Debug("ignoring malformed client frame",
				"token", handle.Name, "error", err)
			continue
		}

		if !handle.Perms.WriteRcon {
			s.log.Warn("client without write permission sent a command",
				"token", handle.Name, "request", msg.ID)
			continue
		}

		// The response travels back over the bus tagged with the client
		// supplied id; the fan-out delivers it to this connection's own
		// subscription. Dispatch is detached from the connection: a
		// command accepted just before a disconnect still executes, its
		// response simply finds no subscriber.
		dispatchCtx := context.WithoutCancel(ctx)
		go func() {
			s.bus.Send(event.ResponseMessage{
				ID:    msg.ID,
				Value: s.dispatch(dispatchCtx, msg.Value.Execute),
			})
		}()
	}
}
