package tableapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"asistencia/internal/auth"
	"asistencia/internal/httpmiddleware"
	"asistencia/internal/validate"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	SigningKey      string
	Issuer          string
	RateLimitPerMin int
	// TrustedProxies may set X-Forwarded-For. Empty trusts none.
	TrustedProxies  []string
	Gatherer        prometheus.Gatherer
	// Health reports named dependency checks for /healthz.
	Health func(ctx context.Context) map[string]bool
}

// RegisterValidators installs the form rules on gin's validator.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}
	return validate.Register(v)
}

// NewRouter builds the gin engine for the table service.
func NewRouter(cfg RouterConfig, h *Handler) (*gin.Engine, error) {
	if err := RegisterValidators(); err != nil {
		return nil, err
	}

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.CORS())
	r.Use(httpmiddleware.SecurityHeaders())
	if cfg.RateLimitPerMin > 0 {
		r.Use(httpmiddleware.NewRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitPerMin, httpmiddleware.ClientIP).GinMiddleware())
	}

	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	r.GET("/healthz", func(c *gin.Context) {
		checks := map[string]bool{}
		if cfg.Health != nil {
			checks = cfg.Health(c.Request.Context())
		}
		status := http.StatusOK
		body := gin.H{"status": "ok"}
		for name, ok := range checks {
			body[name] = ok
			if !ok {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
		c.JSON(status, body)
	})

	rest := r.Group("/rest/v1", auth.APIKey(cfg.SigningKey, cfg.Issuer))
	rest.GET("/students", h.ListStudents)
	rest.POST("/students", h.InsertStudents)
	rest.GET("/attendance_records", h.ListRecords)
	rest.POST("/attendance_records", h.InsertRecords)

	v1 := r.Group("/v1", auth.APIKey(cfg.SigningKey, cfg.Issuer), auth.RequireRole(auth.RoleService))
	v1.GET("/summary", h.Summary)

	return r, nil
}
