package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aisouls/backend/internal/model/persona"
	"github.com/aisouls/backend/pkg/utils"
)

// Handler persona服务的HTTP处理器
type Handler struct {
	personas persona.Store
}

// New 创建persona处理器
func New(personas persona.Store) *Handler {
	return &Handler{
		personas: personas,
	}
}

// RegisterRoutes 注册persona相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/personas", h.handleListPersonas)
	r.Get("/personas/{key}", h.handleGetPersona)
}

// handleListPersonas 按展示顺序列出所有persona
func (h *Handler) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.personas.Definitions())
}

// handleGetPersona 按名称或ID查询单个persona
func (h *Handler) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	def, ok := h.personas.Find(chi.URLParam(r, "key"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "persona not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, def)
}
