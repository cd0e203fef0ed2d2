package logging

import (
	"context"
	"log/slog"
	"os"

	"card-payments/internal/config"
	"card-payments/internal/logcontext"
	"github.com/grafana/loki-client-go/loki"
	slogloki "github.com/samber/slog-loki/v3"
)

const serviceName = "card-payments"

func GetLogger(cfg config.Logs) *slog.Logger {
	if cfg.URL == "" {
		return localLogger()
	}

	return remoteLogger(cfg.URL)
}

func localLogger() *slog.Logger {
	return slog.New(logcontext.Handler{Handler: slog.NewJSONHandler(os.Stdout, nil)}).With("service", serviceName)
}

func remoteLogger(url string) *slog.Logger {
	lokiConfig, err := loki.NewDefaultConfig(url)
	if err != nil {
		return localLogger()
	}
	client, err := loki.New(lokiConfig)
	if err != nil {
		return localLogger()
	}

	return slog.New(slogloki.Option{
		Level:  slog.LevelInfo,
		Client: client,
		AttrFromContext: []func(ctx context.Context) []slog.Attr{
			logcontext.Attrs,
		},
	}.NewLokiHandler()).With("service", serviceName)
}
