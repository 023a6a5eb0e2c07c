package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pickem-lab/internal/observability"
)

const maxWSMessageBytes = 64 << 10

// handleWS serves correlated queries over a WebSocket. Each text message is
// one PropsRequest and gets one reply: a CorrelatedResponse or an error
// response with the same shape as the HTTP endpoint.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Printf("[%s] websocket upgrade: %v", requestID(r.Context()), err)
		return
	}
	defer conn.Close()

	observability.AddWSConnections(1)
	defer observability.AddWSConnections(-1)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(s.ws.WriteTimeout))
		return conn.WriteJSON(v)
	}

	conn.SetReadLimit(maxWSMessageBytes)
	conn.SetReadDeadline(time.Now().Add(s.ws.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.ws.ReadTimeout))
	})

	go s.pingLoop(ctx, conn, &writeMu)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Printf("[%s] websocket read: %v", requestID(r.Context()), err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.ws.ReadTimeout))

		reply := s.wsReply(ctx, msgType, data)
		if err := write(reply); err != nil {
			s.logger.Printf("[%s] websocket write: %v", requestID(r.Context()), err)
			return
		}
	}
}

// wsReply answers one WebSocket message.
func (s *Server) wsReply(ctx context.Context, msgType int, data []byte) any {
	if msgType != websocket.TextMessage {
		return errorResponse{Error: "only text messages are accepted"}
	}

	var req PropsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return errorResponse{Error: fmt.Errorf("%w: decode message: %v", errBadRequest, err).Error()}
	}

	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.correlate(qctx, req)
	if err != nil {
		if statusFor(err) >= http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
			s.logger.Printf("[%s] websocket correlate: %v", requestID(ctx), err)
		}
		return errorResponse{Error: err.Error()}
	}
	return resp
}

func (s *Server) pingLoop(ctx context.Context, conn *websocket.Conn, writeMu *sync.Mutex) {
	ticker := time.NewTicker(s.ws.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.ws.WriteTimeout))
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
