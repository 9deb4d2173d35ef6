package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fitsyu2/HummingWallet-Server/internal/notify"
	"github.com/fitsyu2/HummingWallet-Server/internal/platform/config"
	"github.com/fitsyu2/HummingWallet-Server/internal/platform/logger"
	"github.com/fitsyu2/HummingWallet-Server/internal/platform/metrics"
	"github.com/fitsyu2/HummingWallet-Server/internal/stream"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	windowSize := config.GetEnvInt("SLIDING_WINDOW_SIZE", stream.DefaultWindowSize)
	liveGrace := config.GetEnvDuration("LIVE_GRACE_PERIOD", 5*time.Second)
	hlsGrace := config.GetEnvDuration("HLS_GRACE_PERIOD", time.Hour)
	idleTimeout := config.GetEnvDuration("SESSION_IDLE_TIMEOUT", 2*time.Minute)
	sweepInterval := config.GetEnvDuration("SWEEP_INTERVAL", 30*time.Second)
	uploadRateLimit := config.GetEnvInt("UPLOAD_RATE_LIMIT", 120)
	uploadRateWindow := config.GetEnvDuration("UPLOAD_RATE_WINDOW", time.Minute)
	maxUploadBytes := config.GetEnvInt("MAX_UPLOAD_BYTES", 10<<20)
	simulateFailures := config.GetEnvBool("PUSH_SIMULATE_FAILURES", false)

	log := logger.New(logLevel, logFormat)
	met := metrics.New()

	liveReg := stream.NewRegistry(stream.Config{
		WindowSize:  windowSize,
		GracePeriod: liveGrace,
		IdleTimeout: idleTimeout,
	})
	hlsReg := stream.NewRegistry(stream.Config{
		WindowSize:  windowSize,
		GracePeriod: hlsGrace,
		IdleTimeout: idleTimeout,
	})
	liveSvc := stream.NewService(liveReg)
	hlsSvc := stream.NewService(hlsReg)
	streamHandler := stream.NewHandler(liveSvc, hlsSvc, log, met, int64(maxUploadBytes))

	pusher := notify.NewSimulatedPusher(log)
	pusher.FailDelivery = simulateFailures
	notifySvc := notify.NewService(notify.NewDeduper(), pusher)
	notifyHandler := notify.NewHandler(notifySvc, log, met)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	onEvict := func(evicted []stream.SessionKey) {
		met.AddSessionsEvicted(len(evicted))
		for _, key := range evicted {
			log.Info("session evicted", "stream_id", string(key))
		}
	}
	go liveReg.Run(ctx, sweepInterval, onEvict)
	go hlsReg.Run(ctx, sweepInterval, onEvict)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() {
			met.SetActiveLiveSessions(liveReg.ActiveCount())
			met.SetActiveHLSSessions(hlsReg.ActiveCount())
		}).ServeHTTP(w, req)
	})
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	uploadLimiter := httprate.Limit(
		uploadRateLimit,
		uploadRateWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
	)
	streamHandler.Routes(r, uploadLimiter)
	notifyHandler.Routes(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"sliding_window_size", windowSize,
		"live_grace_period", liveGrace.String(),
		"hls_grace_period", hlsGrace.String(),
		"idle_timeout", idleTimeout.String(),
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
