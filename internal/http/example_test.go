package http_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/quorum/internal/artifact"
	"github.com/fyrsmithlabs/quorum/internal/config"
	httpserver "github.com/fyrsmithlabs/quorum/internal/http"
	"github.com/fyrsmithlabs/quorum/internal/orchestrator"
)

// ExampleServer demonstrates how to create and start the status server.
func ExampleServer() {
	dir, err := os.MkdirTemp("", "quorum-example")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	store, err := artifact.Open(filepath.Join(dir, ".quorum", "artifacts"))
	if err != nil {
		panic(err)
	}
	states := orchestrator.NewStateStore(filepath.Join(dir, ".quorum"))

	logger := zap.NewNop()

	// Port 0 picks a free port.
	cfg := &config.ServerConfig{Host: "127.0.0.1", Port: 0}

	server, err := httpserver.NewServer(states, store, logger, cfg)
	if err != nil {
		panic(err)
	}

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}()

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	fmt.Println("Server started and stopped successfully")
	// Output: Server started and stopped successfully
}
