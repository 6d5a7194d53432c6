package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/sanatani-gyan/backend/internal/model/identity"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/observability"
	authService "github.com/zhouzirui/sanatani-gyan/backend/internal/service/auth"
	"github.com/zhouzirui/sanatani-gyan/backend/pkg/utils"
)

// Handler 账户相关的HTTP处理器
type Handler struct {
	provider *authService.Provider
}

// New 创建账户处理器
func New(provider *authService.Provider) *Handler {
	return &Handler{provider: provider}
}

// RegisterRoutes 注册账户相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", h.handleSignup)
		r.Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)
		r.Get("/me", h.handleMe)
	})
}

type credentials struct {
	Username string `json:"username"`
}

// handleSignup 注册并登录新用户
func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var payload credentials
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.provider.Signup(r.Context(), payload.Username)
	h.respondResult(w, r, result, err, http.StatusCreated)
}

// handleLogin 登录已有用户
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload credentials
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.provider.Login(r.Context(), payload.Username)
	h.respondResult(w, r, result, err, http.StatusOK)
}

// handleLogout 退出登录，回到访客身份
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.provider.Logout(r.Context()); err != nil {
		observability.LoggerFromContext(r.Context()).Error("logout failed", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to log out")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type meResponse struct {
	Guest bool           `json:"guest"`
	User  *identity.User `json:"user,omitempty"`
}

// handleMe 返回当前身份
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id := h.provider.Current()
	utils.RespondJSON(w, http.StatusOK, meResponse{Guest: id.IsGuest(), User: id.User})
}

// 失败的登录或注册属于预期结果，返回 409 并附带原因
func (h *Handler) respondResult(w http.ResponseWriter, r *http.Request, result authService.Result, err error, okStatus int) {
	if err != nil {
		observability.LoggerFromContext(r.Context()).Error("auth request failed", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "account store unavailable")
		return
	}
	if !result.OK {
		utils.RespondJSON(w, http.StatusConflict, result)
		return
	}
	utils.RespondJSON(w, okStatus, result)
}
