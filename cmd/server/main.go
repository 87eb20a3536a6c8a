package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"expograph/internal/embed"
	"expograph/internal/graph"
	"expograph/internal/recommend"
	"expograph/pkg/config"
	"expograph/pkg/logger"
)

func main() {
	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting query API server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()
	client, err := graph.NewClient(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase)
	if err != nil {
		log.Fatal("Failed to connect to graph store", zap.Error(err))
	}
	defer client.Close(ctx)

	// Semantic search is optional: without an API key the endpoint reports
	// itself unavailable but the graph queries still work.
	var embedFn embed.Func
	if cfg.OpenAIAPIKey != "" {
		embedder, err := embed.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingsModel)
		if err != nil {
			log.Fatal("Failed to create embedder", zap.Error(err))
		}
		embedFn = embedder.Embed
	}
	service := recommend.NewService(client, embedFn)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(service, log)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

func newRouter(service *recommend.Service, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.GET("/visitors/:badge/streams", func(c *gin.Context) {
			streams, err := service.StreamsForVisitor(c.Request.Context(), c.Param("badge"))
			if err != nil {
				log.Error("Failed to fetch visitor streams", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch streams"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"streams": streams})
		})

		api.GET("/visitors/:badge/recommendations", func(c *gin.Context) {
			recs, err := service.RecommendSessions(c.Request.Context(), c.Param("badge"), intQuery(c, "limit", 10))
			if err != nil {
				log.Error("Failed to fetch recommendations", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch recommendations"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"recommendations": recs})
		})

		api.POST("/sessions/search", func(c *gin.Context) {
			var req struct {
				Text  string `json:"text" binding:"required"`
				Limit int    `json:"limit"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			recs, err := service.SearchSessions(c.Request.Context(), req.Text, req.Limit)
			if err != nil {
				log.Error("Session search failed", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"results": recs})
		})
	}
	return router
}

func intQuery(c *gin.Context, name string, defaultValue int) int {
	var value int
	if _, err := fmt.Sscanf(c.Query(name), "%d", &value); err != nil || value < 1 {
		return defaultValue
	}
	return value
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Info("HTTP Request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
