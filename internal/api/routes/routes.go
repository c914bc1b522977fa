package routes

import (
	"errors"
	"net/http"

	"companion-api/internal/api/handlers"
	"companion-api/internal/api/middleware"
	"companion-api/internal/models"
	"companion-api/pkg/ratelimit"

	"github.com/gin-gonic/gin"
)

// Handlers bundles every handler the API mounts
type Handlers struct {
	Quotes    *handlers.QuoteHandler
	Points    *handlers.PointsHandler
	Users     *handlers.UserHandler
	WebSocket *handlers.WebSocketHandler
	Limits    *handlers.LimitsHandler
	Health    *handlers.HealthHandler
	Metrics   http.Handler
}

// policies resolves named limits, remembering the first error
type policies struct {
	config *ratelimit.Config
	err    error
}

func (p *policies) get(name string, opts ...ratelimit.PolicyOption) *ratelimit.Policy {
	policy, err := p.config.Policy(name, opts...)
	if err != nil && p.err == nil {
		p.err = err
	}
	return policy
}

// SetupRoutes mounts the API views on app using the named limits in limits
func SetupRoutes(app *Application, h *Handlers, limits *ratelimit.Config) error {
	p := &policies{config: limits}

	moderator := middleware.RequireScope(models.ScopeModerator)
	user := middleware.RequireScope(models.ScopeUser)
	monitors := ratelimit.WithExempt(middleware.MonitorExempter())

	views := []*View{
		NewView("quotes",
			GET("/:id", h.Quotes.GetQuote).Limit(p.get("quotes")),
			POST("/", h.Quotes.CreateQuote).Limit(p.get("quotes")).Use(moderator),
		),
		NewView("points",
			GET("/:twitch_id", h.Points.GetPoints).Limit(p.get("player_json")),
			POST("/:twitch_id", h.Points.AddPoints).Limit(p.get("player_json")).Use(moderator),
		),
		NewView("users",
			POST("/", h.Users.CreateUser).Limit(p.get("users")).Use(moderator),
			GET("/me", h.Users.Me).Limit(p.get("player_dashboard")).Use(user),
			POST("/session", h.Users.Login).Limit(p.get("player_login")).Use(user),
			DELETE("/session", h.Users.Logout).Limit(p.get("player_login")),
		),
		NewView("websockets",
			WebSocket("/connect", h.WebSocket.Connect).Limit(p.get("websocket")).Use(moderator),
			POST("/dispatch/:subscription", h.WebSocket.Dispatch).Limit(p.get("player_json")).Use(moderator),
			GET("/stats", h.WebSocket.Stats).Limit(p.get("player_dashboard")).Use(moderator),
		),
		NewView("limits",
			GET("/", h.Limits.List).Limit(p.get("player_dashboard")).Use(moderator),
			GET("/stats", h.Limits.Stats).Limit(p.get("player_dashboard")).Use(moderator),
		),
		NewView("health",
			GET("/health", h.Health.HealthCheck).Limit(p.get("player_json", monitors)).NoPrefix(),
		),
	}

	if h.Metrics != nil {
		views = append(views, NewView("metrics",
			GET("/metrics", gin.WrapH(h.Metrics)).Limit(p.get("player_json", monitors)).NoPrefix(),
		))
	}

	if p.err != nil {
		return p.err
	}

	var errs []error
	for _, v := range views {
		if err := app.AddView(v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
