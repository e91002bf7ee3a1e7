package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"gcli2api-go/internal/adminapi"
	"gcli2api-go/internal/config"
	"gcli2api-go/internal/constants"
	"gcli2api-go/internal/gateway"
	"gcli2api-go/internal/identity"
	"gcli2api-go/internal/keystore"
	"gcli2api-go/internal/logging"
	"gcli2api-go/internal/middleware"
	"gcli2api-go/internal/oauth"
	"gcli2api-go/internal/pool"
	"gcli2api-go/internal/tracing"
	"gcli2api-go/internal/translator"
	"gcli2api-go/internal/upstreamclient"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if *debug {
		cfg.Security.Debug = true
	}
	if err := logging.Setup(cfg); err != nil {
		log.WithError(err).Fatal("failed to configure logging")
	}
	translator.SetGenerationDefaults(cfg.Generation)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	traceShutdown, err := tracing.Init(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to initialize tracing")
	}
	if traceShutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := traceShutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("failed to shut down tracing")
			}
		}()
	}

	dataDir := cfg.DataDir

	poolStore, err := pool.OpenStore(dataDir + "/accounts.json")
	if err != nil {
		log.WithError(err).Fatal("failed to open credential pool store")
	}
	refresher := oauth.NewManager(cfg.OAuth.ClientID, cfg.OAuth.ClientSecret, oauth.WithTokenURL(cfg.OAuth.TokenURL))
	credPool := pool.New(poolStore, refresher)
	credPool.StartReloadLoop(ctx, constants.CredentialRefreshInterval, dataDir+"/accounts.json")
	if err := credPool.WatchFile(ctx, dataDir+"/accounts.json", 500*time.Millisecond); err != nil {
		log.WithError(err).Warn("failed to start credential file watcher; falling back to periodic reload only")
	}

	keys, err := keystore.Open(dataDir + "/api_keys.json")
	if err != nil {
		log.WithError(err).Fatal("failed to open API key store")
	}

	ids := identity.New()
	upstream := upstreamclient.New(cfg)
	admin := adminapi.New(credPool, keys)
	_ = admin // admin surface has no HTTP routes in this build; kept wired for an out-of-process admin tool.

	handler := gateway.New(cfg, credPool, keys, ids, upstream, cfg.Security.APIKey)

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Recovery(), middleware.RequestLogger(), middleware.CORS())
	r.Use(middleware.RateLimiter(200, 400), middleware.Metrics())
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", middleware.MetricsHandler)
	handler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: r,
	}

	go func() {
		log.WithField("addr", cfg.Addr()).Info("gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ServerShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
	time.Sleep(constants.ServerGracefulWait)
}
