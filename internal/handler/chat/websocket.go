package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	chatService "github.com/aisouls/backend/internal/service/chat"
	"github.com/aisouls/backend/pkg/utils"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsMaxMessage   = utils.MaxBodyBytes
)

// WebSocketHandler WebSocket聊天处理器，一个连接对应一个会话
type WebSocketHandler struct {
	chatSvc  *chatService.Service
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(chatSvc *chatService.Service) *WebSocketHandler {
	return &WebSocketHandler{
		chatSvc: chatSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type    string `json:"type"`
	Persona string `json:"persona,omitempty"`
	Content string `json:"content,omitempty"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Outbound frame types.
const (
	frameSession  = "session"
	frameThinking = "thinking"
	frameReply    = "reply"
	frameReset    = "reset"
	frameError    = "error"
)

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	ctx := r.Context()

	snapshot, err := h.chatSvc.GetSession(ctx, sessionID)
	if err != nil {
		utils.RespondError(w, statusFor(err), messageFor(err))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("session", sessionID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessage)

	logger := log.Ctx(ctx).With().Str("session", sessionID).Logger()
	logger.Debug().Msg("websocket connected")

	if err := h.send(conn, outgoingMessage{Type: frameSession, SessionID: sessionID, Data: snapshot}); err != nil {
		return
	}

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				if h.send(conn, outgoingMessage{Type: frameError, SessionID: sessionID, Error: "invalid message"}) != nil {
					return
				}
				continue
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}

		if err := h.dispatch(ctx, conn, sessionID, msg, logger); err != nil {
			logger.Debug().Err(err).Msg("websocket write failed")
			return
		}
	}
}

// dispatch handles one inbound frame. Domain failures are reported to the
// client as error frames; only transport errors are returned.
func (h *WebSocketHandler) dispatch(ctx context.Context, conn *websocket.Conn, sessionID string, msg inboundMessage, logger zerolog.Logger) error {
	var (
		out outgoingMessage
		err error
	)
	out.SessionID = sessionID

	switch msg.Type {
	case "select":
		out.Type = frameSession
		out.Data, err = h.chatSvc.SelectPersona(ctx, sessionID, msg.Persona)
	case "start":
		out.Type = frameSession
		out.Data, err = h.chatSvc.StartSession(ctx, sessionID)
	case "message", "retry":
		if sendErr := h.send(conn, outgoingMessage{Type: frameThinking, SessionID: sessionID}); sendErr != nil {
			return sendErr
		}
		var reply chatService.Reply
		if msg.Type == "message" {
			reply, err = h.chatSvc.SendMessage(ctx, sessionID, msg.Content)
		} else {
			reply, err = h.chatSvc.Retry(ctx, sessionID)
		}
		out.Type = frameReply
		if !reply.Answered && reply.Reset {
			out.Type = frameReset
		}
		out.Data = reply
	case "state":
		out.Type = frameSession
		out.Data, err = h.chatSvc.GetSession(ctx, sessionID)
	default:
		return h.send(conn, outgoingMessage{Type: frameError, SessionID: sessionID, Error: "unknown message type"})
	}

	if err != nil {
		logger.Debug().Err(err).Str("type", msg.Type).Msg("websocket request failed")
		return h.send(conn, outgoingMessage{Type: frameError, SessionID: sessionID, Error: messageFor(err)})
	}
	return h.send(conn, out)
}

func (h *WebSocketHandler) send(conn *websocket.Conn, msg outgoingMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}
