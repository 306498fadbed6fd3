// Package logging builds the zap logger used by epibot and adapts it to the
// core.Logger and core.AuditRecorder contracts.
package logging

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"epibot/internal/config"
	"epibot/internal/core"
)

// New builds a zap logger from cfg.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil && cfg.Level != "" {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	if cfg.Level != "" {
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		zcfg.Encoding = "json"
	case "console":
		zcfg.Encoding = "console"
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// Adapter satisfies core.Logger with key/value pairs.
type Adapter struct {
	s *zap.SugaredLogger
}

var _ core.Logger = (*Adapter)(nil)

// Wrap adapts l to core.Logger. A nil logger discards everything.
func Wrap(l *zap.Logger) *Adapter {
	if l == nil {
		l = zap.NewNop()
	}
	return &Adapter{s: l.Sugar()}
}

// Named returns an adapter scoped to a sub-logger.
func (a *Adapter) Named(name string) *Adapter {
	return &Adapter{s: a.s.Named(name)}
}

func (a *Adapter) Debug(msg string, args ...any) { a.s.Debugw(msg, args...) }
func (a *Adapter) Info(msg string, args ...any)  { a.s.Infow(msg, args...) }
func (a *Adapter) Warn(msg string, args ...any)  { a.s.Warnw(msg, args...) }
func (a *Adapter) Error(msg string, args ...any) { a.s.Errorw(msg, args...) }

// AuditLogger writes audit entries as structured log lines.
type AuditLogger struct {
	l *zap.Logger
}

var _ core.AuditRecorder = (*AuditLogger)(nil)

// NewAuditLogger returns a recorder logging to l under the "audit" name.
func NewAuditLogger(l *zap.Logger) *AuditLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &AuditLogger{l: l.Named("audit")}
}

// Record implements core.AuditRecorder. Failed operations log at warn.
func (a *AuditLogger) Record(_ context.Context, e core.AuditEntry) {
	fields := []zap.Field{
		zap.String("operation", e.Operation),
		zap.String("status", string(e.Status)),
		zap.Duration("duration", e.Duration),
		zap.Time("at", e.Timestamp),
	}
	if e.UserID != 0 {
		fields = append(fields, zap.Int64("user_id", int64(e.UserID)))
	}
	if e.EntityID != "" {
		fields = append(fields, zap.String("entity_id", e.EntityID))
	}
	if e.Status == core.AuditStatusError {
		fields = append(fields, zap.String("error", e.Error))
		a.l.Warn("audit", fields...)
		return
	}
	a.l.Info("audit", fields...)
}
