package server

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nimburion/pulse/pkg/observability/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.NewZapLogger(logger.Config{
		Level:  logger.ErrorLevel,
		Format: logger.TextFormat,
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return log
}

func TestServerStartAndShutdown(t *testing.T) {
	router := gin.New()
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	cfg := Config{
		Port:         18081,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  10 * time.Second,
	}
	srv := NewServer(cfg, router, newTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(ctx)
	}()

	// Give the listener a moment to come up.
	time.Sleep(100 * time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("http://localhost:%d/ping", cfg.Port))
	if err != nil {
		t.Fatalf("failed to make request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	cancel()

	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("server shutdown failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("server shutdown timed out")
	}
}

func TestServerStartFailsOnPortConflict(t *testing.T) {
	router := gin.New()
	cfg := Config{Port: 18082, ReadTimeout: 5 * time.Second, IdleTimeout: 10 * time.Second}
	log := newTestLogger(t)

	first := NewServer(cfg, router, log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	firstErr := make(chan error, 1)
	go func() {
		firstErr <- first.Start(ctx)
	}()
	time.Sleep(100 * time.Millisecond)

	second := NewServer(cfg, router, log)
	secondCtx, secondCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer secondCancel()

	if err := second.Start(secondCtx); err == nil {
		t.Error("expected an error binding an occupied port")
	}

	cancel()
	select {
	case err := <-firstErr:
		if err != nil {
			t.Errorf("first server shutdown failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("first server shutdown timed out")
	}
}
