package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/sessiongate-go/application"
	"github.com/lk2023060901/sessiongate-go/internal/client"
	"github.com/lk2023060901/sessiongate-go/internal/gateway"
	"github.com/lk2023060901/sessiongate-go/internal/manager"
	"github.com/lk2023060901/sessiongate-go/internal/notifier"
	"github.com/lk2023060901/sessiongate-go/internal/registry"
	"github.com/lk2023060901/sessiongate-go/internal/store"
	"github.com/lk2023060901/sessiongate-go/pkg/log"
	"github.com/lk2023060901/sessiongate-go/pkg/metrics"
)

type storeConfig struct {
	Path string `mapstructure:"path"`
}

type clientConfig struct {
	Driver string `mapstructure:"driver"`
}

func main() {
	app := application.New()
	if err := app.Run(); err != nil {
		log.Fatal("failed to start application", zap.Error(err))
	}
	defer log.Sync()

	var (
		gwCfg  gateway.Config
		stCfg  = storeConfig{Path: "./sessions.db"}
		cliCfg = clientConfig{Driver: "noop"}
	)
	if cfg := app.Config(); cfg != nil {
		if err := cfg.UnmarshalKey("server", &gwCfg); err != nil {
			log.Fatal("invalid server config", zap.Error(err))
		}
		if err := cfg.UnmarshalKey("store", &stCfg); err != nil {
			log.Fatal("invalid store config", zap.Error(err))
		}
		if err := cfg.UnmarshalKey("client", &cliCfg); err != nil {
			log.Fatal("invalid client config", zap.Error(err))
		}
	}
	if stCfg.Path == "" {
		stCfg.Path = "./sessions.db"
	}
	if cliCfg.Driver == "" {
		cliCfg.Driver = "noop"
	}

	metrics.Register(prometheus.DefaultRegisterer)

	factory, err := client.Driver(cliCfg.Driver)
	if err != nil {
		log.Fatal("unknown client driver", zap.String("driver", cliCfg.Driver), zap.Error(err))
	}

	st, err := store.Open(stCfg.Path)
	if err != nil {
		log.Fatal("failed to open session store", zap.String("path", stCfg.Path), zap.Error(err))
	}
	defer st.Close()

	reg := registry.New()
	hub := notifier.NewHub()
	mgr := manager.New(factory, st, reg, hub)

	srv, err := gateway.NewServer(gwCfg, mgr, reg, hub)
	if err != nil {
		log.Fatal("failed to build gateway", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := mgr.RestoreAll(ctx); err != nil {
		log.Fatal("failed to restore sessions", zap.Error(err))
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.Run(ctx)
	})

	if err := group.Wait(); err != nil {
		log.Error("gateway exited with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("sessiongate stopped")
}
