package prompt

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/sanatani-gyan/backend/internal/model/prompt"
	"github.com/zhouzirui/sanatani-gyan/backend/pkg/utils"
)

// Handler 快捷话题的HTTP处理器
type Handler struct {
	prompts prompt.Store
}

// New 创建话题处理器
func New(prompts prompt.Store) *Handler {
	return &Handler{
		prompts: prompts,
	}
}

// RegisterRoutes 注册话题相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/topics", h.handleListTopics)
}

// handleListTopics 列出所有快捷话题
func (h *Handler) handleListTopics(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.prompts.Topics())
}
