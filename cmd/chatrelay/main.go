package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"chatrelay/internal/app"
	"chatrelay/internal/config"
)

// configFileEnv names the optional YAML config file.
const configFileEnv = "CHATRELAY_CONFIG_FILE"

func main() {
	if err := run(context.Background(), os.Stderr); err != nil {
		log.Fatal(err)
	}
}

// run loads .env, layers the configuration and serves until SIGINT/SIGTERM
// or a fatal server error.
func run(ctx context.Context, logOutput io.Writer) error {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.LoadConfigWithPrecedence(os.Getenv(configFileEnv))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := cfg.Log.NewLogger(logOutput)
	if err != nil {
		return err
	}

	application, err := app.NewApplication(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		_ = application.Stop(context.Background())
		return fmt.Errorf("failed to start application: %w", err)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err, ok := <-application.Errors():
		if ok {
			serveErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := application.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return serveErr
}
