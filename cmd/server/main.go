package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/cors"
	"github.com/skillspeak/interview-proxy/internal/chat"
	"github.com/skillspeak/interview-proxy/internal/config"
	"github.com/skillspeak/interview-proxy/internal/interview"
	"github.com/skillspeak/interview-proxy/internal/logger"
	"github.com/skillspeak/interview-proxy/internal/metrics"
	"github.com/skillspeak/interview-proxy/internal/proxy"
	"github.com/skillspeak/interview-proxy/internal/ratings"
	"github.com/skillspeak/interview-proxy/internal/resume"
	"github.com/skillspeak/interview-proxy/internal/streaming"
	"github.com/skillspeak/interview-proxy/internal/upstream"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig

	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))

	log.Info("Setting Gin mode", slog.String("mode", cfg.GinMode))
	gin.SetMode(cfg.GinMode)

	prompts := config.DefaultPrompts()
	if cfg.PromptsFile != "" {
		p, err := config.LoadPromptsFile(cfg.PromptsFile)
		if err != nil {
			log.Error("failed to load prompts file", slog.String("path", cfg.PromptsFile), slog.String("error", err.Error()))
			os.Exit(1)
		}
		prompts = p
		log.Info("prompt templates loaded", slog.String("path", cfg.PromptsFile))
	}

	registry := streaming.NewRegistry(cfg.SessionGracePeriod, log)

	var broadcasterOpts []streaming.BroadcasterOption
	var nc *nats.Conn
	if cfg.NatsURL != "" {
		var err error
		nc, err = nats.Connect(cfg.NatsURL,
			nats.Name("interview-proxy-"+logger.GetInstanceID()),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			log.Warn("NATS unavailable, event mirror disabled", slog.String("error", err.Error()))
		} else {
			mirror := streaming.NewNATSMirror(nc, cfg.NatsSubjectPrefix, logger.GetInstanceID(), log)
			broadcasterOpts = append(broadcasterOpts, streaming.WithMirror(mirror))
			log.Info("event mirror enabled", slog.String("subject_prefix", cfg.NatsSubjectPrefix))
		}
	}
	broadcaster := streaming.NewBroadcaster(registry, log, broadcasterOpts...)

	client := upstream.NewClient(cfg, log)

	services := proxy.Services{
		Registry:     registry,
		Orchestrator: chat.New(client, broadcaster, chat.OptionsFromConfig(cfg, prompts), log),
		Interview: interview.NewService(client, prompts, interview.Options{
			QuestionsTimeout: cfg.QuestionsTimeout,
			AnswerTimeout:    cfg.AnswersTimeout,
			Workers:          cfg.AnswerWorkers,
			StructuredOutput: cfg.StructuredOutputs,
		}, log),
		Resume: resume.NewService(client, resume.NewStore(cfg.ResumeStoreSize, cfg.ResumeStoreTTL), broadcaster, prompts, resume.Options{
			ParseTimeout:     cfg.ResumeParseTimeout,
			ChatCutoff:       cfg.ResumeChatCutoff,
			StructuredOutput: cfg.StructuredOutputs,
		}, log),
		Ratings:            ratings.NewStore(),
		ListenerBufferSize: cfg.ListenerBufferSize,
		StaticDir:          cfg.StaticDir,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.RequestLoggingMiddleware(log))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	proxy.RegisterRoutes(router, log, services)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "X-Client-ID", "X-Source", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
	})

	stats := cron.New()
	if _, err := stats.AddFunc(cfg.StatsSchedule, func() { reportStats(log, registry) }); err != nil {
		log.Warn("invalid stats schedule, stats job disabled",
			slog.String("schedule", cfg.StatsSchedule),
			slog.String("error", err.Error()))
	}
	stats.Start()

	port := ":" + cfg.Port
	srv := &http.Server{
		Addr:              port,
		Handler:           corsHandler.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("🚀 server starting", slog.String("port", cfg.Port), slog.String("model", client.Model()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("🛑 Shutting down server...")

	<-stats.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", slog.String("error", err.Error()))
	}

	if nc != nil {
		if err := nc.Drain(); err != nil {
			log.Warn("failed to drain NATS connection", slog.String("error", err.Error()))
		}
	}

	log.Info("✅ Server exited")
}

// reportStats publishes registry gauges and logs a one-line summary.
func reportStats(log *logger.Logger, registry *streaming.Registry) {
	st := registry.Stats()
	metrics.ActiveSessions.Set(float64(st.Sessions))
	metrics.ActiveListeners.WithLabelValues("session").Set(float64(st.SessionListeners))
	metrics.ActiveListeners.WithLabelValues("legacy").Set(float64(st.LegacyListeners))

	log.Info("registry stats",
		slog.Int("sessions", st.Sessions),
		slog.Int("session_listeners", st.SessionListeners),
		slog.Int("legacy_listeners", st.LegacyListeners),
		slog.Any("sources", st.Sources))
}
