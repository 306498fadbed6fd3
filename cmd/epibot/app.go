package main

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"epibot/internal/config"
	"epibot/internal/core"
	"epibot/internal/logging"
	"epibot/internal/session"
	"epibot/internal/validation"
	"epibot/pkg/domain"
)

// app wires the record store and the service for one command invocation.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	records  domain.RecordStore
	sessions *session.Store
	svc      *core.Service
	closer   io.Closer
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...core.Option) (*app, error) {
	records, closer, err := core.OpenRecordStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	links := validation.NewLinkValidator(cfg.Links.Prefixes...)
	sessions := session.NewStore(session.WithIdleTTL(cfg.GetIdleTTL()))
	base := []core.Option{
		core.WithLogger(logging.Wrap(logger).Named("core")),
		core.WithAuditRecorder(logging.NewAuditLogger(logger)),
		core.WithLinkValidator(links),
		core.WithRulesEngine(core.NewDefaultRulesEngine(links)),
		core.WithStoreTimeout(cfg.GetStoreTimeout()),
		core.WithSearchLimit(cfg.Limits.SearchLimit),
		core.WithRateLimit(cfg.Limits.ActionsPerSecond, cfg.Limits.Burst),
	}
	svc := core.NewService(records, sessions, append(base, opts...)...)
	logger.Debug("record store opened", zap.String("driver", cfg.Storage.Driver))
	return &app{
		cfg:      cfg,
		logger:   logger,
		records:  records,
		sessions: sessions,
		svc:      svc,
		closer:   closer,
	}, nil
}

func (a *app) Close() error {
	if a == nil || a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// closeInto closes a and folds the close error into *err.
func closeInto(a *app, err *error) {
	*err = errors.Join(*err, a.Close())
}

func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), d)
}
