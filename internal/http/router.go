package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/carrierdesk/backend/internal/carrier"
	"github.com/carrierdesk/backend/internal/config"
	"github.com/carrierdesk/backend/internal/http/handlers"
	"github.com/carrierdesk/backend/internal/http/middleware"
	"github.com/carrierdesk/backend/internal/service"
	"github.com/carrierdesk/backend/internal/session"

	_ "github.com/carrierdesk/backend/docs"
)

func Router(cfg config.Config, store handlers.Store, loads service.LoadRepository, callLogs service.CallLogStore, gateway carrier.Gateway, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-API-Key", "X-Webhook-Signature", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	v := validator.New()
	sessions := session.NewStore()
	h := &handlers.Handler{
		Store:    store,
		Gateway:  gateway,
		Sessions: sessions,
		Dispatcher: &service.Dispatcher{
			Loads:     loads,
			CallLogs:  callLogs,
			Gateway:   gateway,
			Sessions:  sessions,
			Validator: v,
			Logger:    logger,
		},
		Validator: v,
		Logger:    logger,
	}

	r.GET("/healthz", h.Healthz)

	// The voice platform signs its webhook deliveries; the rest of the
	// API authenticates with the configured key.
	webhooks := r.Group("/api/webhooks")
	webhooks.Use(middleware.WebhookSignature(cfg.WebhookSecret))
	{
		webhooks.POST("/voice", h.VoiceWebhook)
		webhooks.POST("/status", h.StatusWebhook)
	}

	api := r.Group("/api")
	api.Use(middleware.APIKey(cfg.APIKey))
	{
		api.POST("/loads/search", h.LoadsSearch)
		api.GET("/loads/stats/summary", h.LoadStatsSummary)
		api.GET("/loads/:load_id", h.LoadGet)
		api.POST("/loads/:load_id/book", h.LoadBook)
		api.POST("/loads/:load_id/negotiate", h.LoadNegotiate)
		api.POST("/carriers/verify", h.CarrierVerify)
		api.GET("/sessions/:id", h.SessionGet)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
