// Package gateway exposes the service surface: the HTTP send API, the
// websocket event channel, static assets, and Prometheus metrics.
package gateway

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/sessiongate-go/internal/manager"
	"github.com/lk2023060901/sessiongate-go/internal/notifier"
	"github.com/lk2023060901/sessiongate-go/internal/registry"
	"github.com/lk2023060901/sessiongate-go/pkg/log"
)

// Config holds the gateway settings, loaded from the "server" config key.
type Config struct {
	// Listen is the address the HTTP server binds, e.g. ":3333".
	Listen string `mapstructure:"listen"`
	// StaticDir is served at / (the bundled web console).
	StaticDir string `mapstructure:"staticdir"`
	// QRDir receives QR code images written during pairing.
	QRDir string `mapstructure:"qrdir"`
	// SendPoolSize bounds the goroutines running outbound sends.
	SendPoolSize int `mapstructure:"sendpoolsize"`
	// SendTimeout bounds one outbound send.
	SendTimeout time.Duration `mapstructure:"sendtimeout"`
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":3333"
	}
	if c.StaticDir == "" {
		c.StaticDir = "./public"
	}
	if c.QRDir == "" {
		c.QRDir = "./public/images"
	}
	if c.SendPoolSize <= 0 {
		c.SendPoolSize = 128
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
}

// Server is the HTTP and websocket front of the service.
type Server struct {
	cfg      Config
	manager  *manager.Manager
	registry *registry.Registry
	hub      *notifier.Hub
	pool     *ants.Pool
	obsSeq   atomic.Uint64
}

// NewServer builds a Server. The send pool is created eagerly so a bad pool
// size fails at startup, not on the first send.
func NewServer(cfg Config, mgr *manager.Manager, reg *registry.Registry, hub *notifier.Hub) (*Server, error) {
	cfg.applyDefaults()

	pool, err := ants.NewPool(cfg.SendPoolSize)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:      cfg,
		manager:  mgr,
		registry: reg,
		hub:      hub,
		pool:     pool,
	}, nil
}

// EnsureDirs creates the static and QR directories when absent.
func (s *Server) EnsureDirs() error {
	for _, dir := range []string{s.cfg.StaticDir, s.cfg.QRDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /text", s.handleText)
	mux.HandleFunc("POST /buttons", s.handleButtons)
	mux.HandleFunc("GET /groups", s.handleGroups)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("/", http.FileServer(http.Dir(s.cfg.StaticDir)))
	return mux
}

// Run serves until ctx is canceled, then drains with a shutdown grace
// period and releases the send pool.
func (s *Server) Run(ctx context.Context) error {
	if err := s.EnsureDirs(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s.Handler(),
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("gateway listening", zap.String("addr", s.cfg.Listen))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.pool.Release()
		return err
	})
	return group.Wait()
}
