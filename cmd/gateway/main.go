// In file: cmd/gateway/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/santoshameti/agentgateway/internal/config"
	"github.com/santoshameti/agentgateway/internal/gateway"
	"github.com/santoshameti/agentgateway/internal/version"
)

const runTimeout = 2 * time.Minute

// main is the Composition Root: it loads configuration, assembles the
// gateway, and serves it over HTTP until SIGINT or SIGTERM.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	buildInfo := version.Get()
	log.Printf("🚀 Starting Agent Gateway | Version: %s | Commit: %s", buildInfo.Version, buildInfo.GitCommit)

	// 1. LOAD CONFIGURATION
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("❌ FATAL: Configuration Error: %v", err)
	}
	log.Println("✅ Configuration loaded.")

	// 2. INITIALIZE SERVICES
	setup, err := gateway.FromConfig(context.Background(), cfg, nil)
	if err != nil {
		log.Fatalf("❌ FATAL: %v", err)
	}
	defer func() {
		if err := setup.Close(); err != nil {
			log.Printf("Warning: failed to release resources: %v", err)
		}
	}()
	handler := NewConversationHandler(setup.Gateway, runTimeout)
	log.Println("✅ All services initialized.")

	// 3. SETUP AND RUN THE WEB SERVER
	gin.SetMode(os.Getenv("GIN_MODE"))
	engine := gin.Default()
	handler.Register(engine)

	srv := &http.Server{Addr: fmt.Sprintf(":%s", cfg.Port()), Handler: engine}
	runServerWithGracefulShutdown(srv)
}

// runServerWithGracefulShutdown handles the server lifecycle.
func runServerWithGracefulShutdown(srv *http.Server) {
	go func() {
		log.Printf("👂 Gateway is listening on http://localhost%s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("❌ Listen error: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("❌ Server shutdown failed: %v", err)
		return
	}

	log.Println("👋 Server exited gracefully.")
}
