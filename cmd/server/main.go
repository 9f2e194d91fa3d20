package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/lovelens/internal/api"
	"github.com/wuwenbin0122/lovelens/internal/chat"
	"github.com/wuwenbin0122/lovelens/internal/llm"
	"github.com/wuwenbin0122/lovelens/internal/store"
	"github.com/wuwenbin0122/lovelens/internal/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file loaded: %v", err)
	}

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("config: failed to load: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("logger: failed to initialise: %v", err)
	}
	defer func() {
		_ = utils.SyncLogger(logger)
	}()
	sugar := logger.Sugar()

	ctx := context.Background()

	conversations, err := store.Open(ctx, cfg)
	if err != nil {
		sugar.Fatalf("store: failed to open %s backend: %v", cfg.Store.Backend, err)
	}
	defer func() {
		if err := conversations.Close(); err != nil {
			sugar.Warnf("store: close error: %v", err)
		}
	}()

	completer, err := llm.New(cfg.LLM, sugar.Named("llm"))
	if err != nil {
		sugar.Fatalf("llm: failed to initialise %s provider: %v", cfg.LLM.Provider, err)
	}

	chatService := chat.NewService(completer, chatOptions(cfg.LLM), sugar.Named("chat"))

	router := setupRouter(logger, conversations, chatService)

	// A chat turn makes up to four sequential completion calls.
	writeTimeout := 4*cfg.LLM.Timeout + 15*time.Second

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sugar.Infof("server listening on %s (store=%s, llm=%s)", server.Addr, cfg.Store.Backend, cfg.LLM.Provider)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("server crashed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Warnf("graceful shutdown failed: %v", err)
	}

	sugar.Info("server stopped cleanly")
}

// chatOptions carries the validated LLM settings into the chat service. A
// configured temperature of 0 is passed through as is.
func chatOptions(cfg utils.LLMConfig) chat.Options {
	return chat.Options{
		Temperature: llm.Float(cfg.Temperature),
		MaxTokens:   cfg.MaxTokens,
	}
}

func setupRouter(logger *zap.Logger, conversations store.Store, responder api.Responder) *gin.Engine {
	router := gin.New()
	router.Use(api.AccessLog(logger.Named("http")), gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	api.NewHandler(conversations, responder, logger.Sugar().Named("api")).RegisterRoutes(router)

	return router
}
