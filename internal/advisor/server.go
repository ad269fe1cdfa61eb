package advisor

import (
	"net/http"
	"strings"
	"time"

	"YieldKeeper/internal/advisory"
	"YieldKeeper/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

const maxRequestBytes = 64 << 10

// Server exposes POST /choose and GET /health.
type Server struct {
	chooser *Chooser
	log     zerolog.Logger
}

// NewServer creates the advisor HTTP server.
func NewServer(chooser *Chooser) *Server {
	return &Server{chooser: chooser, log: logger.For("advisor-http")}
}

// Handler builds the gin router wrapped in CORS handling. An empty origin
// list allows any origin.
func (s *Server) Handler(allowedOrigins []string) http.Handler {
	router := gin.New()
	router.Use(s.requestLogger())
	router.Use(recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.POST("/choose", s.choose)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         600,
	}).Handler(router)
}

func (s *Server) choose(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBytes)

	var req advisory.ChooseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(req.Strategies) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "strategies must not be empty"})
		return
	}
	for _, st := range req.Strategies {
		if strings.TrimSpace(st.Name) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "strategy name must not be empty"})
			return
		}
	}

	resp, err := s.chooser.Choose(c.Request.Context(), req.Strategies)
	if err != nil {
		s.log.Error().Err(err).Int("strategies", len(req.Strategies)).Msg("AI advisor error")
		c.JSON(http.StatusBadGateway, gin.H{"error": "AI service error"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	})
}
