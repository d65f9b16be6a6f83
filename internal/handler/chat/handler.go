package chat

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	chatService "github.com/aisouls/backend/internal/service/chat"
	"github.com/aisouls/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Route("/session/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Delete("/", h.handleDeleteSession)
		r.Put("/persona", h.handleSelectPersona)
		r.Post("/start", h.handleStartSession)
		r.Post("/messages", h.handleSendMessage)
		r.Post("/retry", h.handleRetry)
	})
}

type personaPayload struct {
	Persona string `json:"persona"`
}

type messagePayload struct {
	Content string `json:"content"`
}

// handleCreateSession 创建会话，persona 为空时使用默认角色
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload personaPayload
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondDecodeError(w, err)
		return
	}

	session, err := h.chatSvc.CreateSession(r.Context(), payload.Persona)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session)
}

// handleGetSession 返回会话当前状态
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// handleDeleteSession 删除会话
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSelectPersona 切换角色，角色变化时清空对话
func (h *Handler) handleSelectPersona(w http.ResponseWriter, r *http.Request) {
	var payload personaPayload
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondDecodeError(w, err)
		return
	}

	session, err := h.chatSvc.SelectPersona(r.Context(), chi.URLParam(r, "sessionID"), payload.Persona)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// handleStartSession 发送角色开场白
func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.StartSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// handleSendMessage 记录用户消息并等待模型回复
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload messagePayload
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondDecodeError(w, err)
		return
	}

	reply, err := h.chatSvc.SendMessage(r.Context(), chi.URLParam(r, "sessionID"), payload.Content)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, reply)
}

// handleRetry 对未回复的最后一条消息重新请求模型
func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	reply, err := h.chatSvc.Retry(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, reply)
}

func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	event := log.Ctx(r.Context()).Debug()
	if status >= http.StatusInternalServerError {
		event = log.Ctx(r.Context()).Error()
	}
	event.Err(err).Int("status", status).Str("path", r.URL.Path).Msg("chat request failed")
	utils.RespondError(w, status, messageFor(err))
}
