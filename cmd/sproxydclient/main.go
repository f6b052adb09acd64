// Command sproxydclient is a thin demo/health-probe binary: it loads
// configuration, builds a client, runs one healthcheck against the
// configured bootstrap list, logs the result and exits. It exists to prove
// the wiring, not as a tested surface in its own right.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	sproxydclient "github.com/scality/sproxydclient"
	"github.com/scality/sproxydclient/config"
	"github.com/scality/sproxydclient/internal/env"
	"github.com/scality/sproxydclient/internal/logger"
	"github.com/scality/sproxydclient/internal/version"
)

func main() {
	vlog := log.New(log.Writer(), "", 0)
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.PrintVersionInfo(true, vlog)
		os.Exit(0)
	}
	version.PrintVersionInfo(false, vlog)

	logInstance, styledLogger, cleanup, err := logger.NewWithTheme(buildLoggerConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()
	slog.SetDefault(logInstance)

	opts, err := config.Load(nil)
	if err != nil {
		logger.FatalWithLogger(logInstance, "failed to load config", "error", err)
	}

	client, err := sproxydclient.New(opts, styledLogger)
	if err != nil {
		logger.FatalWithLogger(logInstance, "failed to construct client", "error", err)
	}
	defer client.Destroy()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reqUID := uuid.NewString()
	body, err := client.Healthcheck(ctx, reqUID)
	if err != nil {
		styledLogger.Error("healthcheck failed", "error", err)
		os.Exit(1)
	}
	defer body.Close()

	styledLogger.Info("healthcheck succeeded", "bootstrap", opts.Bootstrap)
}

func buildLoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      env.GetOrDefault("SPROXYD_LOG_LEVEL", "info"),
		FileOutput: env.GetBoolOrDefault("SPROXYD_FILE_OUTPUT", false),
		LogDir:     env.GetOrDefault("SPROXYD_LOG_DIR", "./logs"),
		MaxSize:    env.GetIntOrDefault("SPROXYD_MAX_SIZE", 100),
		MaxBackups: env.GetIntOrDefault("SPROXYD_MAX_BACKUPS", 5),
		MaxAge:     env.GetIntOrDefault("SPROXYD_MAX_AGE", 30),
		Theme:      env.GetOrDefault("SPROXYD_THEME", "default"),
	}
}
