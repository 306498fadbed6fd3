package session

import (
	"context"
	"sync"
	"time"

	"epibot/pkg/domain"
)

// Store keeps sessions in process memory and serializes work per user.
// Different users never block each other beyond the short map lookup.
type Store struct {
	mu      sync.Mutex
	entries map[domain.UserID]*entry
	idleTTL time.Duration
	nowFn   func() time.Time
}

type entry struct {
	mu      sync.Mutex
	refs    int
	session Session
}

// Option configures a Store.
type Option func(*Store)

// WithIdleTTL evicts sessions untouched for ttl. Zero disables expiry.
func WithIdleTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.idleTTL = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// NewStore constructs an empty session store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[domain.UserID]*entry),
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) acquire(user domain.UserID) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[user]
	if !ok {
		e = &entry{session: Session{User: user}}
		s.entries[user] = e
	}
	e.refs++
	return e
}

func (s *Store) release(user domain.UserID, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.refs--
	if e.refs > 0 {
		return
	}
	e.mu.Lock()
	idle := !e.session.Active()
	e.mu.Unlock()
	if idle {
		delete(s.entries, user)
	}
}

// Update runs fn against a copy of the user's session while holding that
// user's lock. The copy replaces the stored session only when fn returns nil,
// so a failed transition leaves the session exactly as it was.
func (s *Store) Update(ctx context.Context, user domain.UserID, fn func(*Session) error) error {
	e := s.acquire(user)
	defer s.release(user, e)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	now := s.nowFn()
	if s.expired(e.session, now) {
		e.session.Reset()
	}
	draft := e.session.Clone()
	if err := fn(&draft); err != nil {
		return err
	}
	draft.User = user
	draft.Touched = now
	e.session = draft
	return nil
}

// Get returns a copy of the user's session. The second result is false when
// nothing is active for the user.
func (s *Store) Get(user domain.UserID) (Session, bool) {
	s.mu.Lock()
	e, ok := s.entries[user]
	s.mu.Unlock()
	if !ok {
		return Session{User: user}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.expired(e.session, s.nowFn()) || !e.session.Active() {
		return Session{User: user}, false
	}
	return e.session.Clone(), true
}

// Clear drops the user's session.
func (s *Store) Clear(ctx context.Context, user domain.UserID) error {
	return s.Update(ctx, user, func(sess *Session) error {
		sess.Reset()
		return nil
	})
}

// Len reports how many sessions are held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) expired(sess Session, now time.Time) bool {
	if s.idleTTL <= 0 || sess.Touched.IsZero() {
		return false
	}
	return now.Sub(sess.Touched) >= s.idleTTL
}

// Sweep evicts idle sessions nobody is currently working on and returns how
// many were removed.
func (s *Store) Sweep() int {
	if s.idleTTL <= 0 {
		return 0
	}
	now := s.nowFn()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for user, e := range s.entries {
		if e.refs > 0 {
			continue
		}
		if s.expired(e.session, now) {
			delete(s.entries, user)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done. It returns nil on shutdown.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	if s.idleTTL <= 0 || interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}
