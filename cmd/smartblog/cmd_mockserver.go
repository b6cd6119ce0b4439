package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smartblog/internal/apitest"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	mockAddr       string
	mockUser       string
	mockPassword   string
	mockChunkDelay time.Duration
)

// mockServerCmd serves the in-memory API for local use
var mockServerCmd = &cobra.Command{
	Use:   "mock-server",
	Short: "Serve an in-memory Smart Blog API",
	Long: `Starts an in-memory server that speaks the Smart Blog API under /api.
Data is lost on exit. Useful for trying the editor without a backend.

Example:
  smartblog mock-server --addr :8000 --user demo@example.com --password secret1
  smartblog --api-url http://localhost:8000/api`,
	RunE: runMockServer,
}

func init() {
	mockServerCmd.Flags().StringVar(&mockAddr, "addr", "127.0.0.1:8000", "Listen address")
	mockServerCmd.Flags().StringVar(&mockUser, "user", "", "Pre-register this email")
	mockServerCmd.Flags().StringVar(&mockPassword, "password", "secret1", "Password for --user")
	mockServerCmd.Flags().DurationVar(&mockChunkDelay, "chunk-delay", 30*time.Millisecond, "Pause between streamed generation frames")
}

func runMockServer(cmd *cobra.Command, args []string) error {
	fake := apitest.NewServer(apitest.WithChunking(0, mockChunkDelay))
	if mockUser != "" {
		fake.Register(mockUser, mockPassword)
		logger.Info("Registered demo user", zap.String("email", mockUser))
	}

	srv := &http.Server{
		Addr:              mockAddr,
		Handler:           fake,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("Mock server listening", zap.String("addr", mockAddr))
		errc <- srv.ListenAndServe()
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s/api (Ctrl+C to stop)\n", mockAddr)

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("mock server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info("Mock server stopped")
	return nil
}
