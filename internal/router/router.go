// Package router wires the HTTP surface: every route, its gateway policy
// and the cross-cutting middleware, in one place.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voicecraft/speech-backend/internal/handler"
	"github.com/voicecraft/speech-backend/internal/metrics"
	"github.com/voicecraft/speech-backend/internal/middleware"
)

// Deps carries everything the route table needs.
type Deps struct {
	Gateway   *middleware.Gateway
	Policies  *middleware.PolicyTable
	Auth      *handler.AuthHandler
	Speeches  *handler.SpeechHandler
	Voices    *handler.VoiceHandler
	RateLimit echo.MiddlewareFunc
	Rec       metrics.Recorder
	Registry  *prometheus.Registry
	FilesRoot string // storage root served under /files
}

// Register attaches all routes. /healthz, /metrics and /files bypass the
// auth gateway entirely; everything under /v1 runs through it with the
// policy recorded here. A route added to /v1 without a policy entry is
// protected, which is the safe default.
func Register(e *echo.Echo, d Deps) {
	e.Use(requestMetrics(d.Rec))

	e.GET("/healthz", handler.Health)
	if d.Registry != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))
	}
	if d.FilesRoot != "" {
		e.Static("/files", d.FilesRoot)
	}

	v1 := e.Group("/v1", d.Gateway.Middleware())

	authGroup := v1.Group("/auth")
	if d.RateLimit != nil {
		authGroup.Use(d.RateLimit)
	}
	authGroup.POST("/oauth", d.Auth.OAuth)
	d.Policies.Set(http.MethodPost, "/v1/auth/oauth", middleware.PolicyPublic)
	authGroup.POST("/signout", d.Auth.SignOut)
	d.Policies.Set(http.MethodPost, "/v1/auth/signout", middleware.PolicyPassthrough)
	authGroup.GET("/me", d.Auth.Me)

	v1.GET("/voices", d.Voices.Voices)
	d.Policies.Set(http.MethodGet, "/v1/voices", middleware.PolicyPublic)

	v1.GET("/speeches", d.Speeches.List)
	v1.POST("/speeches", d.Speeches.Create)
	v1.GET("/speeches/:id", d.Speeches.Get)
	v1.PATCH("/speeches/:id", d.Speeches.Rename)
	v1.DELETE("/speeches/:id", d.Speeches.Delete)
	v1.POST("/speeches/:id/blocks", d.Speeches.AddBlock)
	v1.PUT("/speeches/:id/blocks/order", d.Speeches.ReorderBlocks)
	v1.PATCH("/speeches/:id/blocks/:blockID", d.Speeches.UpdateBlock)
	v1.DELETE("/speeches/:id/blocks/:blockID", d.Speeches.DeleteBlock)
	v1.POST("/speeches/:id/blocks/:blockID/synthesize", d.Speeches.Synthesize)
}

// requestMetrics counts responses by status code.
func requestMetrics(rec metrics.Recorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if rec != nil {
				rec.RecordRequest(c.Response().Status)
			}
			return err
		}
	}
}
