package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/sanatani-gyan/backend/internal/model/chat"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/model/prompt"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/observability"
	chatService "github.com/zhouzirui/sanatani-gyan/backend/internal/service/chat"
	"github.com/zhouzirui/sanatani-gyan/backend/pkg/utils"
)

const guestLimitReason = "You have reached the guest message limit. Please sign up or log in to continue."

// Options 控制聊天处理器的访客限制与建议数量
type Options struct {
	GuestLimit   int
	StarterCount int
}

// Handler 聊天会话的HTTP处理器
type Handler struct {
	manager *chatService.Manager
	prompts prompt.Store
	opts    Options
}

// New 创建聊天处理器
func New(manager *chatService.Manager, prompts prompt.Store, opts Options) *Handler {
	if opts.StarterCount <= 0 {
		opts.StarterCount = 3
	}
	return &Handler{
		manager: manager,
		prompts: prompts,
		opts:    opts,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/state", h.handleState)
	r.Post("/activity", h.handleActivity)
	r.Get("/suggestions", h.handleSuggestions)
	r.Get("/language", h.handleGetLanguage)
	r.Put("/language", h.handleSetLanguage)

	r.Get("/messages", h.handleListMessages)
	r.Post("/messages", h.handleSendMessage)
	r.Delete("/messages", h.handleClearHistory)
	r.Post("/messages/topic", h.handleSendTopic)
	r.Post("/messages/{messageID}/save", h.handleToggleSaved)
	r.Delete("/messages/{messageID}", h.handleDeleteMessage)
	r.Get("/messages/{messageID}/share", h.handleShare)
}

// GuestQuota 访客剩余可发送的消息数
type GuestQuota struct {
	Limit     int  `json:"limit"`
	Used      int  `json:"used"`
	Remaining int  `json:"remaining"`
	Reached   bool `json:"reached"`
}

type stateResponse struct {
	chat.Session
	GuestQuota *GuestQuota `json:"guestQuota,omitempty"`
}

// handleState 返回当前会话快照
func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	session := h.manager.Snapshot()
	utils.RespondJSON(w, http.StatusOK, stateResponse{
		Session:    session,
		GuestQuota: h.quota(session),
	})
}

// handleListMessages 列出消息，可只返回已收藏的
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	var query struct {
		Saved bool `schema:"saved"`
	}
	if err := utils.DecodeQuery(r.URL.Query(), &query); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid query parameters")
		return
	}

	messages := h.manager.Messages()
	if query.Saved {
		saved := make([]chat.Message, 0, len(messages))
		for _, msg := range messages {
			if msg.IsSaved {
				saved = append(saved, msg)
			}
		}
		messages = saved
	}

	utils.RespondJSON(w, http.StatusOK, messages)
}

// handleSendMessage 发送用户消息并返回模型回复
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.send(w, r, payload.Text)
}

// handleSendTopic 以快捷话题发起提问
func (h *Handler) handleSendTopic(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Topic string `json:"topic"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	topic, ok := h.prompts.FindTopic(payload.Topic)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "topic not found")
		return
	}

	h.send(w, r, topic.Question())
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request, text string) {
	if quota := h.quota(h.manager.Snapshot()); quota != nil && quota.Reached {
		utils.RespondJSON(w, http.StatusForbidden, map[string]string{
			"error":  "guest limit reached",
			"reason": guestLimitReason,
		})
		return
	}

	reply, err := h.manager.SendMessage(r.Context(), text)
	if errors.Is(err, chatService.ErrEmptyText) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		observability.LoggerFromContext(r.Context()).Error("send message failed", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	utils.RespondJSON(w, http.StatusOK, reply)
}

// handleToggleSaved 切换消息收藏状态
func (h *Handler) handleToggleSaved(w http.ResponseWriter, r *http.Request) {
	msg, err := h.manager.ToggleSaved(r.Context(), chi.URLParam(r, "messageID"))
	if err != nil {
		respondManagerError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, msg)
}

// handleDeleteMessage 删除单条消息，仅登录用户可用
func (h *Handler) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	if h.manager.Snapshot().Identity.IsGuest() {
		utils.RespondError(w, http.StatusForbidden, "log in to delete messages")
		return
	}

	if err := h.manager.DeleteMessage(r.Context(), chi.URLParam(r, "messageID")); err != nil {
		respondManagerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleClearHistory 清空当前身份的全部消息
func (h *Handler) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	h.manager.ClearHistory(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

type shareResponse struct {
	Text     string `json:"text"`
	Tweet    string `json:"tweet"`
	TweetURL string `json:"tweetUrl"`
}

// handleShare 生成分享文本与推文链接
func (h *Handler) handleShare(w http.ResponseWriter, r *http.Request) {
	opts := chat.DefaultShareOptions()
	if err := utils.DecodeQuery(r.URL.Query(), &opts); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid query parameters")
		return
	}

	msg, err := h.manager.Message(chi.URLParam(r, "messageID"))
	if err != nil {
		respondManagerError(w, err)
		return
	}
	if msg.Answer == nil {
		utils.RespondError(w, http.StatusUnprocessableEntity, "message has no answer to share")
		return
	}

	text := msg.Answer.ShareText(opts)
	utils.RespondJSON(w, http.StatusOK, shareResponse{
		Text:     text,
		Tweet:    chat.TweetText(text),
		TweetURL: chat.TweetIntentURL(text),
	})
}

// handleActivity 记录输入活动并重置空闲计时
func (h *Handler) handleActivity(w http.ResponseWriter, r *http.Request) {
	h.manager.RecordActivity()
	w.WriteHeader(http.StatusNoContent)
}

type suggestionsResponse struct {
	Visible  bool             `json:"visible"`
	Starters []prompt.Starter `json:"starters"`
}

// handleSuggestions 在建议可见时返回随机的开场问题
func (h *Handler) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	resp := suggestionsResponse{Starters: []prompt.Starter{}}
	if h.manager.SuggestionsVisible() {
		resp.Visible = true
		resp.Starters = h.prompts.Starters(h.opts.StarterCount)
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

type languageResponse struct {
	Language   chat.Language   `json:"language"`
	ShortLabel string          `json:"shortLabel"`
	Available  []chat.Language `json:"available"`
}

// handleGetLanguage 返回当前回答语言
func (h *Handler) handleGetLanguage(w http.ResponseWriter, r *http.Request) {
	h.respondLanguage(w, h.manager.Language())
}

// handleSetLanguage 切换回答语言
func (h *Handler) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Language string `json:"language"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	lang, ok := chat.ParseLanguage(payload.Language)
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "unsupported language")
		return
	}

	if err := h.manager.SetLanguage(r.Context(), lang); err != nil {
		observability.LoggerFromContext(r.Context()).Error("set language failed", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to store language")
		return
	}
	h.respondLanguage(w, lang)
}

func (h *Handler) respondLanguage(w http.ResponseWriter, lang chat.Language) {
	utils.RespondJSON(w, http.StatusOK, languageResponse{
		Language:   lang,
		ShortLabel: lang.ShortLabel(),
		Available:  chat.Languages(),
	})
}

func (h *Handler) quota(session chat.Session) *GuestQuota {
	if !session.Identity.IsGuest() || h.opts.GuestLimit <= 0 {
		return nil
	}
	used := session.UserMessageCount()
	remaining := h.opts.GuestLimit - used
	if remaining < 0 {
		remaining = 0
	}
	return &GuestQuota{
		Limit:     h.opts.GuestLimit,
		Used:      used,
		Remaining: remaining,
		Reached:   remaining == 0,
	}
}

func respondManagerError(w http.ResponseWriter, err error) {
	if errors.Is(err, chatService.ErrMessageNotFound) {
		utils.RespondError(w, http.StatusNotFound, "message not found")
		return
	}
	utils.RespondError(w, http.StatusInternalServerError, err.Error())
}
