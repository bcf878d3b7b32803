// Package session issues, validates and revokes bearer sessions. Sessions
// live in a durable store and are cached in memory; validation consults the
// cache first and falls back to the durable store on a miss.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"filegate/internal/db"

	"golang.org/x/sync/singleflight"
)

// Persist is the durable side of the store. *db.DB implements it.
type Persist interface {
	ReplaceSessions(ctx context.Context, s db.Session) error
	GetSession(ctx context.Context, token string) (*db.Session, bool, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteSessionsForUser(ctx context.Context, userID int64) ([]string, error)
	DeleteExpiredSessions(ctx context.Context, now int64) (int64, error)
}

// Session is a validated bearer session.
type Session struct {
	Token      string
	UserID     int64
	CreatedAt  time.Time
	ExpiresAt  time.Time
	SourceAddr string
}

func (s Session) expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type Options struct {
	Persist Persist
	TTL     time.Duration
	Logger  *slog.Logger
	// Now overrides the clock; tests use it to expire sessions.
	Now func() time.Time
}

type Store struct {
	persist Persist
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time

	// lifecycle orders Create/Revoke (write) against Validate (read) so a
	// revoke that returns before a validate starts is always observed.
	lifecycle sync.RWMutex

	cacheMu sync.Mutex
	cache   map[string]Session
	byUser  map[int64]map[string]struct{}

	loads singleflight.Group
}

func New(opts Options) (*Store, error) {
	if opts.Persist == nil {
		return nil, errors.New("session persistence is required")
	}
	if opts.TTL <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		persist: opts.Persist,
		ttl:     opts.TTL,
		logger:  opts.Logger,
		now:     opts.Now,
		cache:   make(map[string]Session),
		byUser:  make(map[int64]map[string]struct{}),
	}, nil
}

// Create issues a new session for userID. Any earlier session of the same
// user is invalidated in the same durable transaction.
func (s *Store) Create(ctx context.Context, userID int64, sourceAddr string) (Session, error) {
	if userID <= 0 {
		return Session{}, errors.New("invalid user id")
	}
	token, err := NewToken(TokenBytes)
	if err != nil {
		return Session{}, err
	}
	now := s.now()
	sess := Session{
		Token:      token,
		UserID:     userID,
		CreatedAt:  time.Unix(now.Unix(), 0),
		ExpiresAt:  time.Unix(now.Add(s.ttl).Unix(), 0),
		SourceAddr: sourceAddr,
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if err := s.persist.ReplaceSessions(ctx, toRow(sess)); err != nil {
		return Session{}, err
	}
	s.cacheMu.Lock()
	s.dropUserLocked(userID)
	s.putLocked(sess)
	s.cacheMu.Unlock()
	return sess, nil
}

// Validate returns the live session for token. The bool is false when the
// token is unknown or expired; expired sessions are removed from both layers.
func (s *Store) Validate(ctx context.Context, token string) (*Session, bool, error) {
	if token == "" {
		return nil, false, nil
	}
	s.lifecycle.RLock()
	defer s.lifecycle.RUnlock()

	now := s.now()
	s.cacheMu.Lock()
	sess, ok := s.cache[token]
	s.cacheMu.Unlock()

	if !ok {
		// The load is shared by every concurrent caller for token, so one
		// caller's cancellation must not fail the others.
		lctx := context.WithoutCancel(ctx)
		v, err, _ := s.loads.Do(token, func() (any, error) {
			row, found, err := s.persist.GetSession(lctx, token)
			if err != nil || !found {
				return nil, err
			}
			return fromRow(*row), nil
		})
		if err != nil {
			return nil, false, err
		}
		if v == nil {
			return nil, false, nil
		}
		sess = v.(Session)
		if !sess.expired(now) {
			s.cacheMu.Lock()
			s.putLocked(sess)
			s.cacheMu.Unlock()
		}
	}

	if sess.expired(now) {
		s.cacheMu.Lock()
		s.deleteLocked(sess)
		s.cacheMu.Unlock()
		if err := s.persist.DeleteSession(ctx, token); err != nil {
			s.logger.Warn("delete expired session", "user_id", sess.UserID, "err", err)
		}
		return nil, false, nil
	}
	return &sess, true, nil
}

// Revoke deletes a single session. Revoking an unknown token is a no-op.
func (s *Store) Revoke(ctx context.Context, token string) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if err := s.persist.DeleteSession(ctx, token); err != nil {
		return err
	}
	s.cacheMu.Lock()
	if sess, ok := s.cache[token]; ok {
		s.deleteLocked(sess)
	}
	s.cacheMu.Unlock()
	return nil
}

// RevokeAllForUser deletes every session of userID. It returns only after
// both the durable store and the cache have been purged.
func (s *Store) RevokeAllForUser(ctx context.Context, userID int64) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if _, err := s.persist.DeleteSessionsForUser(ctx, userID); err != nil {
		return err
	}
	s.cacheMu.Lock()
	s.dropUserLocked(userID)
	s.cacheMu.Unlock()
	return nil
}

// Sweep purges expired sessions from both layers and returns the number of
// durable rows removed.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	now := s.now()
	n, err := s.persist.DeleteExpiredSessions(ctx, now.Unix())
	if err != nil {
		return 0, err
	}
	s.cacheMu.Lock()
	for _, sess := range s.cache {
		if sess.expired(now) {
			s.deleteLocked(sess)
		}
	}
	s.cacheMu.Unlock()
	return n, nil
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Warn("session sweep failed", "err", err)
				continue
			}
			if n > 0 {
				s.logger.Debug("session sweep", "removed", n)
			}
		}
	}
}

// Count returns the number of cached sessions that have not expired.
func (s *Store) Count() int {
	now := s.now()
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	n := 0
	for _, sess := range s.cache {
		if !sess.expired(now) {
			n++
		}
	}
	return n
}

func (s *Store) putLocked(sess Session) {
	s.cache[sess.Token] = sess
	set := s.byUser[sess.UserID]
	if set == nil {
		set = make(map[string]struct{})
		s.byUser[sess.UserID] = set
	}
	set[sess.Token] = struct{}{}
}

func (s *Store) deleteLocked(sess Session) {
	delete(s.cache, sess.Token)
	if set := s.byUser[sess.UserID]; set != nil {
		delete(set, sess.Token)
		if len(set) == 0 {
			delete(s.byUser, sess.UserID)
		}
	}
}

func (s *Store) dropUserLocked(userID int64) {
	for token := range s.byUser[userID] {
		delete(s.cache, token)
	}
	delete(s.byUser, userID)
}

func toRow(s Session) db.Session {
	return db.Session{
		Token:      s.Token,
		UserID:     s.UserID,
		CreatedAt:  s.CreatedAt.Unix(),
		ExpiresAt:  s.ExpiresAt.Unix(),
		SourceAddr: s.SourceAddr,
	}
}

func fromRow(r db.Session) Session {
	return Session{
		Token:      r.Token,
		UserID:     r.UserID,
		CreatedAt:  time.Unix(r.CreatedAt, 0),
		ExpiresAt:  time.Unix(r.ExpiresAt, 0),
		SourceAddr: r.SourceAddr,
	}
}
