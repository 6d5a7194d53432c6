package narration

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	chatService "github.com/zhouzirui/sanatani-gyan/backend/internal/service/chat"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/service/narration"
	"github.com/zhouzirui/sanatani-gyan/backend/pkg/utils"
)

// Handler 朗读控制的HTTP处理器
type Handler struct {
	manager  *chatService.Manager
	narrator *narration.Narrator
}

// New 创建朗读处理器
func New(manager *chatService.Manager, narrator *narration.Narrator) *Handler {
	return &Handler{
		manager:  manager,
		narrator: narrator,
	}
}

// RegisterRoutes 注册朗读相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/messages/{messageID}/narration", h.handlePlay)

	r.Route("/narration", func(r chi.Router) {
		r.Get("/", h.handleStatus)
		r.Post("/pause", h.handlePause)
		r.Post("/resume", h.handleResume)
		r.Post("/stop", h.handleStop)
		r.Post("/finished", h.handleFinished)
		r.Put("/rate", h.handleRate)
	})
}

// handlePlay 朗读指定的回答消息
func (h *Handler) handlePlay(w http.ResponseWriter, r *http.Request) {
	msg, err := h.manager.Message(chi.URLParam(r, "messageID"))
	if errors.Is(err, chatService.ErrMessageNotFound) {
		utils.RespondError(w, http.StatusNotFound, "message not found")
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status, err := h.narrator.Play(msg, h.manager.Language())
	if errors.Is(err, narration.ErrNoAnswer) {
		utils.RespondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, status)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.narrator.Status())
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.narrator.Pause())
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.narrator.Resume())
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.narrator.Stop())
}

// handleFinished 浏览器在朗读结束或出错时回报
func (h *Handler) handleFinished(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UtteranceID string `json:"utteranceId"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil || payload.UtteranceID == "" {
		utils.RespondError(w, http.StatusBadRequest, "utteranceId is required")
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.narrator.Finished(payload.UtteranceID))
}

// handleRate 调整朗读语速
func (h *Handler) handleRate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Rate float64 `json:"rate"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status, err := h.narrator.SetRate(payload.Rate)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, status)
}
