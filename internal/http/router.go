package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/sos_unifio/backend/internal/auth"
	"github.com/sos_unifio/backend/internal/config"
	"github.com/sos_unifio/backend/internal/http/handlers"
	"github.com/sos_unifio/backend/internal/http/middleware"
	"github.com/sos_unifio/backend/internal/localstate"
	"github.com/sos_unifio/backend/internal/metrics"
	"github.com/sos_unifio/backend/internal/models"
	"github.com/sos_unifio/backend/internal/realtime"
	"github.com/sos_unifio/backend/internal/service"

	_ "github.com/sos_unifio/backend/docs"
)

// Deps are the collaborators the API is built from. Store, Availability,
// Backend, State and Tokens are optional.
type Deps struct {
	Dispatcher   *service.Dispatcher
	Hub          *realtime.Hub
	Simulator    *realtime.Simulator
	Store        handlers.Pinger
	Availability handlers.AvailabilityStore
	Backend      handlers.Backend
	State        *localstate.Store
	Tokens       *auth.Tokens
	Locations    []models.Location
}

func Router(cfg config.Config, deps Deps, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(metrics.Middleware())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Dispatcher:   deps.Dispatcher,
		Store:        deps.Store,
		Availability: deps.Availability,
		Backend:      deps.Backend,
		State:        deps.State,
		Simulator:    deps.Simulator,
		Tokens:       deps.Tokens,
		Locations:    deps.Locations,
		Validator:    validator.New(),
		Logger:       logger,
	}
	limiter := middleware.NewIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if deps.Hub != nil {
		r.GET("/ws", gin.WrapH(deps.Hub))
	}

	api := r.Group("/api")
	{
		api.POST("/occurrences", limiter.Middleware(), h.CreateOccurrence)
		api.GET("/occurrences", h.ListOccurrences)
		api.GET("/occurrences/:id", h.GetOccurrence)
		api.PATCH("/occurrences/:id", h.UpdateOccurrence)
		api.POST("/occurrences/:id/cancel", h.CancelOccurrence)
		api.GET("/responders", h.ListResponders)
		api.GET("/locations", h.ListLocations)
	}

	calls := api.Group("/calls")
	calls.Use(middleware.ResponderAuth(deps.Tokens))
	{
		calls.GET("", h.ListCalls)
		calls.POST("/:id/accept", h.AcceptCall)
		calls.POST("/:id/reject", h.RejectCall)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/occurrences/:id/assign", h.AssignOccurrence)
		admin.PUT("/responders/:id/availability", h.SetAvailability)
		admin.POST("/responders/:id/token", h.IssueToken)
		admin.POST("/realtime/nova-ocorrencia", h.RealtimeWebhook)
		admin.POST("/simulate", limiter.Middleware(), h.Simulate)
		admin.GET("/dashboard", h.Dashboard)
		admin.GET("/state/:key", h.GetState)
		admin.PUT("/state/:key", h.PutState)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
