// Command solver runs the VRP solver microservice: a stateless HTTP
// service exposing POST /optimize-schedule and GET /health, following the
// graceful-shutdown and router wiring conventions of this codebase's other
// binaries.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/pageza/fieldsched/internal/config"
	"github.com/pageza/fieldsched/internal/solver/httpapi"
)

func main() {
	logger := log.New(os.Stdout, "[solver] ", log.LstdFlags)

	cfg, err := config.LoadSolverConfig()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	handler := httpapi.NewHandler(logger, *cfg)
	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.WallClockLimit + 5*time.Second,
	}

	go func() {
		logger.Printf("listening on %s (environment=%s)", server.Addr, cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Println("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatalf("graceful shutdown failed: %v", err)
	}
	logger.Println("stopped")
}
