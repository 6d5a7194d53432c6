package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/sanatani-gyan/backend/internal/events"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/handler/auth"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/handler/chat"
	eventsHandler "github.com/zhouzirui/sanatani-gyan/backend/internal/handler/events"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/handler/narration"
	"github.com/zhouzirui/sanatani-gyan/backend/internal/handler/prompt"
	middlewarePkg "github.com/zhouzirui/sanatani-gyan/backend/internal/middleware"
	promptModel "github.com/zhouzirui/sanatani-gyan/backend/internal/model/prompt"
	authService "github.com/zhouzirui/sanatani-gyan/backend/internal/service/auth"
	chatService "github.com/zhouzirui/sanatani-gyan/backend/internal/service/chat"
	narrationService "github.com/zhouzirui/sanatani-gyan/backend/internal/service/narration"
	"github.com/zhouzirui/sanatani-gyan/backend/pkg/utils"
)

// Dependencies 汇总路由需要的服务
type Dependencies struct {
	Manager        *chatService.Manager
	Auth           *authService.Provider
	Narrator       *narrationService.Narrator
	Hub            *events.Hub
	Prompts        promptModel.Store
	AllowedOrigins []string
	GuestLimit     int
	StarterCount   int
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	chatHandler := chat.New(deps.Manager, deps.Prompts, chat.Options{
		GuestLimit:   deps.GuestLimit,
		StarterCount: deps.StarterCount,
	})
	promptHandler := prompt.New(deps.Prompts)
	authHandler := auth.New(deps.Auth)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		promptHandler.RegisterRoutes(api)
		authHandler.RegisterRoutes(api)

		if deps.Narrator != nil {
			narration.New(deps.Manager, deps.Narrator).RegisterRoutes(api)
		}

		if deps.Hub != nil {
			eventsHandler.NewWebSocketHandler(deps.Hub, deps.Manager).RegisterRoutes(api)
		}
	})

	return r
}
