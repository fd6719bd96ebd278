package controllee

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/vrtctl/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// NewAdminRouter serves /health, /state and /metrics for ep.
func NewAdminRouter(ep *Endpoint) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	cfg := ep.Config()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.HTTPMiddleware(cfg.Name, log.Logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"name":   cfg.Name,
			"addr":   ep.Addr(),
		})
	})
	r.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"state":  ep.State(),
			"limits": gin.H{"bandwidth_hz": cfg.Bandwidth, "frequency_hz": cfg.Frequency},
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// ServeAdmin runs the admin API on addr until ctx ends.
func ServeAdmin(ctx context.Context, addr string, ep *Endpoint) error {
	observability.RegisterMetrics()
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewAdminRouter(ep),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("controllee admin listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
