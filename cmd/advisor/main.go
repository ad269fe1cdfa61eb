package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"YieldKeeper/internal/advisor"
	"YieldKeeper/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	log := logger.For("main")
	if err := logger.Init(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT")); err != nil {
		log.Fatal().Err(err).Msg("init logger")
	}
	log = logger.For("main")

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Fatal().Msg("OPENAI_API_KEY is required")
	}
	port := envOr("PORT", "3333")
	model := envOr("OPENAI_MODEL", "gpt-4o-mini")
	timeout, err := time.ParseDuration(envOr("ADVISOR_TIMEOUT", "20s"))
	if err != nil {
		log.Fatal().Err(err).Msg("parse ADVISOR_TIMEOUT")
	}
	var origins []string
	for _, o := range strings.Split(envOr("ADVISOR_CORS_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	completer := advisor.NewOpenAICompleter(apiKey, os.Getenv("OPENAI_BASE_URL"), model, os.Getenv("HTTPS_PROXY"))
	srv := advisor.NewServer(advisor.NewChooser(completer, timeout))

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Handler(origins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("advisor shutdown error")
		}
	}()

	log.Info().Str("port", port).Str("model", model).Msg("Advisor running")
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("advisor server")
	}
	log.Info().Msg("Advisor stopped")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
