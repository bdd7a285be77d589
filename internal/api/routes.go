package api

import (
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rawblock/keyprint-engine/internal/calibration"
	"github.com/rawblock/keyprint-engine/internal/classifier"
	"github.com/rawblock/keyprint-engine/internal/config"
	"github.com/rawblock/keyprint-engine/internal/db"
	"github.com/rawblock/keyprint-engine/internal/evidence"
	"github.com/rawblock/keyprint-engine/internal/training"
)

// SetupRouter builds the gin engine with the profiler routes, CORS, rate
// limiting and the metrics endpoint.
func SetupRouter(
	cfg config.Config,
	store db.Store,
	manager *classifier.Manager,
	calibrator *calibration.Calibrator,
	sessions *evidence.SessionCache,
	trainer *training.Orchestrator,
	hub *Hub,
) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://example.com,https://www.example.com
	// Development: ALLOWED_ORIGINS=http://localhost:3000 (or leave empty for *)
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &Handler{
		store:            store,
		manager:          manager,
		calibrator:       calibrator,
		sessions:         sessions,
		trainer:          trainer,
		hub:              hub,
		autoTrainEvery:   cfg.Model.AutoTrainEvery,
		thresholdSettled: cfg.Auth.ThresholdSettled,
		thresholdEarly:   cfg.Auth.ThresholdEarly,
		settledSamples:   cfg.Auth.SettledSamples,
	}

	limiter := NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)

	profiler := r.Group("/api/profiler")
	profiler.Use(limiter.Middleware())
	{
		profiler.POST("/session", IdentityMiddleware(cfg.Auth.Identities), handler.handleSubmitSession)
		profiler.POST("/identify", handler.handleIdentify)
		profiler.POST("/train", IdentityMiddleware(cfg.Auth.Identities), handler.handleTrain)
		profiler.GET("/model", handler.handleModelInfo)
		profiler.GET("/stream", hub.Subscribe)
	}

	// Health stays outside the rate-limited group so probes never get 429s.
	r.GET("/api/profiler/health", handler.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
