package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"epibot/internal/session"
	"epibot/internal/validation"
	"epibot/pkg/domain"

	"golang.org/x/time/rate"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// Logger is the structured logger used by the service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// AuditStatus captures the outcome of an audited operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes a write against the record store.
type AuditEntry struct {
	Operation string
	UserID    domain.UserID
	EntityID  string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives audit entries for store writes.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes handled operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around handled operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the operation error.
type TraceSpan interface {
	End(err error)
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, AuditEntry) {}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the service clock.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger installs a structured logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuditRecorder installs an audit sink for store writes.
func WithAuditRecorder(rec AuditRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.audit = rec
		}
	}
}

// WithMetricsRecorder installs a metrics sink.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithRulesEngine replaces the save-time rules.
func WithRulesEngine(engine *domain.RulesEngine) Option {
	return func(s *Service) {
		if engine != nil {
			s.engine = engine
		}
	}
}

// WithLinkValidator sets the accepted reference link prefixes.
func WithLinkValidator(v validation.LinkValidator) Option {
	return func(s *Service) {
		if len(v.Prefixes()) > 0 {
			s.links = v
		}
	}
}

// WithStoreTimeout bounds every record store call. Zero disables the bound.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.storeTimeout = d
		}
	}
}

// WithSearchLimit caps the number of search results (at most domain.DefaultSearchLimit).
func WithSearchLimit(n int) Option {
	return func(s *Service) {
		s.searchLimit = domain.NormalizeLimit(n)
	}
}

// WithRateLimit limits how many actions per second one user may send. Actions
// over the limit are rejected with ErrRateLimited, not queued.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Service) {
		if perSecond > 0 {
			s.limiter = newUserLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// Service routes inbound actions to the wizard or the search flow.
type Service struct {
	records      domain.RecordStore
	sessions     *session.Store
	engine       *domain.RulesEngine
	links        validation.LinkValidator
	clock        Clock
	logger       Logger
	audit        AuditRecorder
	metrics      MetricsRecorder
	tracer       Tracer
	storeTimeout time.Duration
	searchLimit  int
	limiter      *userLimiter
}

// DefaultStoreTimeout bounds record store calls unless overridden.
const DefaultStoreTimeout = 5 * time.Second

// NewService constructs a service backed by the supplied stores.
func NewService(records domain.RecordStore, sessions *session.Store, opts ...Option) *Service {
	if sessions == nil {
		sessions = session.NewStore()
	}
	svc := &Service{
		records:      records,
		sessions:     sessions,
		engine:       NewDefaultRulesEngine(validation.NewLinkValidator()),
		links:        validation.NewLinkValidator(),
		clock:        ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:       noopLogger{},
		audit:        noopAudit{},
		metrics:      noopMetrics{},
		tracer:       noopTracer{},
		storeTimeout: DefaultStoreTimeout,
		searchLimit:  domain.DefaultSearchLimit,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Records returns the underlying record store.
func (s *Service) Records() domain.RecordStore { return s.records }

// Sessions returns the session store.
func (s *Service) Sessions() *session.Store { return s.sessions }

// Menu clears the user's session and shows the welcome text with the main menu.
func (s *Service) Menu(ctx context.Context, user domain.UserID) (Reply, error) {
	return s.run(ctx, "menu", user, func(ctx context.Context) (Reply, error) {
		return s.menu(ctx, user)
	})
}

// StartForm is the "start form" entry point.
func (s *Service) StartForm(ctx context.Context, user domain.UserID) (Reply, error) {
	return s.run(ctx, "start_form", user, func(ctx context.Context) (Reply, error) {
		return s.transition(ctx, user, s.startForm)
	})
}

// StartSearch is the "start search" entry point.
func (s *Service) StartSearch(ctx context.Context, user domain.UserID) (Reply, error) {
	return s.run(ctx, "start_search", user, func(ctx context.Context) (Reply, error) {
		return s.transition(ctx, user, s.startSearch)
	})
}

// Handle routes one inbound action. The reply always carries what to show;
// the error classifies what happened.
func (s *Service) Handle(ctx context.Context, a Action) (Reply, error) {
	return s.run(ctx, operationName(a), a.UserID, func(ctx context.Context) (Reply, error) {
		switch a.Kind {
		case ActionText, ActionButton:
		default:
			return Reply{}, fmt.Errorf("unknown action kind %q", a.Kind)
		}
		if a.Kind == ActionButton {
			switch a.Payload {
			case ActMenuForm:
				return s.transition(ctx, a.UserID, s.startForm)
			case ActMenuSearch:
				return s.transition(ctx, a.UserID, s.startSearch)
			case ActMenuMain:
				return s.menu(ctx, a.UserID)
			case ActMenuHelp:
				return reply(renderMenu(helpText)), nil
			}
		}
		return s.transition(ctx, a.UserID, func(ctx context.Context, sess *session.Session) (Reply, error) {
			return s.route(ctx, sess, a)
		})
	})
}

func (s *Service) route(ctx context.Context, sess *session.Session, a Action) (Reply, error) {
	if a.Kind == ActionButton {
		switch {
		case strings.HasPrefix(a.Payload, wizardActionPrefix):
			if sess.Wizard == nil {
				return Reply{}, nil
			}
			return s.wizardButton(ctx, sess, a.Payload)
		case strings.HasPrefix(a.Payload, searchActionPrefix):
			if sess.Search == nil {
				return Reply{}, nil
			}
			return s.searchButton(ctx, sess, a.Payload)
		}
		return Reply{}, nil
	}
	switch {
	case sess.Wizard != nil:
		return s.wizardText(ctx, sess, a.Payload)
	case sess.Search != nil:
		return s.searchText(ctx, sess, a.Payload)
	}
	return reply(renderMenu(fallbackText)), nil
}

func (s *Service) menu(ctx context.Context, user domain.UserID) (Reply, error) {
	if err := s.sessions.Clear(ctx, user); err != nil {
		return reply(notice(unavailableText)), err
	}
	return reply(renderMenu(welcomeText)), nil
}

// transition applies fn to the user's session under that user's lock. The
// session changes are kept unless fn fails with an error that means the
// action did not happen (store failures, cancellation).
func (s *Service) transition(ctx context.Context, user domain.UserID, fn func(context.Context, *session.Session) (Reply, error)) (Reply, error) {
	var (
		out    Reply
		outErr error
	)
	err := s.sessions.Update(ctx, user, func(sess *session.Session) error {
		out, outErr = fn(ctx, sess)
		if outErr != nil && !keepsState(outErr) {
			return outErr
		}
		return nil
	})
	if err != nil && outErr == nil {
		return reply(notice(unavailableText)), err
	}
	return out, outErr
}

// keepsState reports whether an action that failed with err still commits its
// session changes. User-level errors do; anything else rolls back.
func keepsState(err error) bool {
	switch Classify(err) {
	case OutcomeValidation, OutcomeInsufficient, OutcomeNotFound:
		return true
	}
	return false
}

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

// run wraps an operation with rate limiting, tracing, metrics and logging.
func (s *Service) run(ctx context.Context, op string, user domain.UserID, fn func(context.Context) (Reply, error)) (Reply, error) {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, op)
	var (
		out Reply
		err error
	)
	if s.limiter != nil && !s.limiter.allow(user, start) {
		out, err = reply(notice(slowDownText)), ErrRateLimited
	} else {
		out, err = fn(ctx)
	}
	duration := s.clock.Now().Sub(start)
	span.End(err)
	class := Classify(err)
	s.metrics.Observe(ctx, op, class.Handled(), duration)
	switch class {
	case OutcomeOK:
		s.logger.Debug("action handled", "operation", op, "user_id", int64(user), "duration", duration)
	case OutcomeValidation, OutcomeInsufficient, OutcomeNotFound, OutcomeRateLimited:
		s.logger.Info("action rejected", "operation", op, "user_id", int64(user), "outcome", string(class), "error", err.Error())
	case OutcomeUnavailable:
		s.logger.Warn("record store unavailable", "operation", op, "user_id", int64(user), "error", err.Error())
	default:
		s.logger.Error("action failed", "operation", op, "user_id", int64(user), "error", err.Error())
	}
	return out, err
}

func (s *Service) recordAudit(ctx context.Context, op string, user domain.UserID, entityID string, duration time.Duration, err error) {
	entry := AuditEntry{
		Operation: op,
		UserID:    user,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now().UTC(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// Lookup runs a one-shot search outside any session.
func (s *Service) Lookup(ctx context.Context, query string) ([]domain.RecordSummary, error) {
	var out []domain.RecordSummary
	_, err := s.run(ctx, "lookup", 0, func(ctx context.Context) (Reply, error) {
		storeCtx, cancel := s.storeContext(ctx)
		defer cancel()
		var err error
		out, err = s.records.SearchByName(storeCtx, query, s.searchLimit)
		return Reply{}, err
	})
	return out, err
}

// DeleteByName removes every record whose name matches exactly, ignoring case.
// Deleting a name that matches nothing returns 0 and no error.
func (s *Service) DeleteByName(ctx context.Context, name string) (int, error) {
	var n int
	_, err := s.run(ctx, "delete_records", 0, func(ctx context.Context) (Reply, error) {
		storeCtx, cancel := s.storeContext(ctx)
		defer cancel()
		start := s.clock.Now()
		var err error
		n, err = s.records.DeleteByName(storeCtx, name)
		s.recordAudit(ctx, "delete_records", 0, name, s.clock.Now().Sub(start), err)
		return Reply{}, err
	})
	return n, err
}
