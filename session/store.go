package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrWriteFailed is returned when a record could not be stored in both
// backends. Neither backend is left holding the new record.
var ErrWriteFailed = errors.New("session write failed")

// ErrClearFailed is returned when a backend refused a delete.
var ErrClearFailed = errors.New("session clear failed")

// Sealer protects what goes into the session-backed store. Open must reject
// anything Seal did not produce, including expired seals.
type Sealer interface {
	Seal(payload []byte) (string, error)
	Open(sealed string) ([]byte, error)
}

// DiscardReason says why a stored entry was thrown away on read.
type DiscardReason string

const (
	DiscardCorrupt     DiscardReason = "corrupt"
	DiscardLegacy      DiscardReason = "legacy"
	DiscardUnsupported DiscardReason = "unsupported_version"
	DiscardSeal        DiscardReason = "seal_invalid"
	DiscardExpired     DiscardReason = "expired"
)

// Source names which backend served a read.
type Source string

const (
	SourceSession Source = "session"
	SourceDurable Source = "durable"
)

// Options wires a Store.
type Options struct {
	// Session is the authoritative store. Defaults to a MemoryBackend.
	Session Backend
	// Durable survives restarts and may be stale. Defaults to a MemoryBackend.
	Durable Backend
	// Sealer, when set, seals every payload written to Session.
	Sealer Sealer
	// MaxAge, when positive, bounds how long a record stays readable from
	// either backend after it was written.
	MaxAge time.Duration
	Logger *slog.Logger
	Now    func() time.Time
	// OnDiscard fires after a stored entry is dropped during a read.
	OnDiscard func(Source, DiscardReason)
}

// Store owns the single session of a client and keeps both backends in step.
// All methods are safe for concurrent use; mutations are serialized.
type Store struct {
	mu      sync.Mutex
	session Backend
	durable Backend
	sealer  Sealer
	logger  *slog.Logger
	now     func() time.Time
	maxAge  time.Duration

	// pending holds backends whose delete failed in Clear. Reads report no
	// session until every one of them has been deleted or a Write succeeds.
	pending []Backend

	onDiscard func(Source, DiscardReason)

	subsMu  sync.Mutex
	subs    map[uint64]func(*Record)
	nextSub uint64
}

func NewStore(opts Options) *Store {
	s := &Store{
		session:   opts.Session,
		durable:   opts.Durable,
		sealer:    opts.Sealer,
		logger:    opts.Logger,
		now:       opts.Now,
		maxAge:    opts.MaxAge,
		onDiscard: opts.OnDiscard,
		subs:      make(map[uint64]func(*Record)),
	}
	if s.session == nil {
		s.session = NewMemoryBackend()
	}
	if s.durable == nil {
		s.durable = NewMemoryBackend()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Write replaces the current session with principal and tokens in both
// backends, then notifies subscribers. On failure neither backend keeps the
// new record.
func (s *Store) Write(ctx context.Context, principal Principal, tokens TokenPair) (*Record, error) {
	rec := &Record{
		SessionID: uuid.NewString(),
		Principal: principal,
		Tokens:    tokens,
		CreatedAt: s.now().Truncate(time.Second),
	}
	data, err := Encode(rec)
	if err != nil {
		return nil, err
	}
	sessionPayload := data
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(data)
		if err != nil {
			return nil, fmt.Errorf("%w: seal: %v", ErrWriteFailed, err)
		}
		sessionPayload = []byte(sealed)
	}

	s.mu.Lock()
	prev, prevErr := s.durable.Load(ctx)
	if err := s.durable.Save(ctx, data); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: durable: %v", ErrWriteFailed, err)
	}
	if err := s.session.Save(ctx, sessionPayload); err != nil {
		s.rollbackDurable(ctx, prev, prevErr)
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: session: %v", ErrWriteFailed, err)
	}
	s.pending = nil
	s.mu.Unlock()

	s.notify(rec)
	return rec, nil
}

func (s *Store) rollbackDurable(ctx context.Context, prev []byte, prevErr error) {
	var err error
	if prevErr == nil {
		err = s.durable.Save(ctx, prev)
	} else {
		err = s.durable.Delete(ctx)
	}
	if err != nil {
		s.logger.Warn("session: durable rollback failed", slog.Any("error", err))
	}
}

// Read returns the current session, preferring the session-backed store.
// Entries that cannot be decoded are logged, deleted and skipped.
func (s *Store) Read(ctx context.Context) (*Record, bool) {
	rec, _, ok := s.ReadWithSource(ctx)
	return rec, ok
}

// ReadWithSource is Read that also reports which backend answered.
func (s *Store) ReadWithSource(ctx context.Context) (*Record, Source, bool) {
	s.mu.Lock()
	if len(s.pending) > 0 {
		err := s.retryPending(ctx)
		s.mu.Unlock()
		if err == nil {
			s.notify(nil)
		}
		return nil, "", false
	}
	defer s.mu.Unlock()

	if rec, ok := s.readSession(ctx); ok {
		return rec, SourceSession, true
	}
	if rec, ok := s.readDurable(ctx); ok {
		return rec, SourceDurable, true
	}
	return nil, "", false
}

// retryPending re-issues the deletes left over from a failed Clear and keeps
// the ones that still fail. Callers hold s.mu.
func (s *Store) retryPending(ctx context.Context) error {
	var errs []error
	left := s.pending[:0]
	for _, b := range s.pending {
		if err := b.Delete(ctx); err != nil {
			left = append(left, b)
			errs = append(errs, err)
		}
	}
	s.pending = left
	return errors.Join(errs...)
}

func (s *Store) expired(rec *Record) bool {
	return s.maxAge > 0 && s.now().After(rec.CreatedAt.Add(s.maxAge))
}

func (s *Store) readSession(ctx context.Context) (*Record, bool) {
	raw, err := s.session.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("session: session store unavailable", slog.Any("error", err))
		}
		return nil, false
	}
	payload := raw
	if s.sealer != nil {
		payload, err = s.sealer.Open(string(raw))
		if err != nil {
			s.discard(ctx, s.session, SourceSession, DiscardSeal, err)
			return nil, false
		}
	}
	rec, err := Decode(payload)
	if err != nil {
		s.discard(ctx, s.session, SourceSession, reasonFor(err), err)
		return nil, false
	}
	if s.expired(rec) {
		s.discard(ctx, s.session, SourceSession, DiscardExpired, nil)
		return nil, false
	}
	return rec, true
}

func (s *Store) readDurable(ctx context.Context) (*Record, bool) {
	raw, err := s.durable.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("session: durable store unavailable", slog.Any("error", err))
		}
		return nil, false
	}
	rec, err := Decode(raw)
	if err != nil {
		s.discard(ctx, s.durable, SourceDurable, reasonFor(err), err)
		return nil, false
	}
	if s.expired(rec) {
		s.discard(ctx, s.durable, SourceDurable, DiscardExpired, nil)
		return nil, false
	}
	return rec, true
}

func (s *Store) discard(ctx context.Context, b Backend, src Source, reason DiscardReason, cause error) {
	s.logger.Warn("session: discarding stored record",
		slog.String("source", string(src)),
		slog.String("reason", string(reason)),
		slog.Any("error", cause),
	)
	if err := b.Delete(ctx); err != nil {
		s.logger.Warn("session: delete of discarded record failed",
			slog.String("source", string(src)),
			slog.Any("error", err),
		)
	}
	if s.onDiscard != nil {
		s.onDiscard(src, reason)
	}
}

func reasonFor(err error) DiscardReason {
	switch {
	case errors.Is(err, ErrLegacyRecord):
		return DiscardLegacy
	case errors.Is(err, ErrUnsupportedVersion):
		return DiscardUnsupported
	default:
		return DiscardCorrupt
	}
}

// AccessToken resolves the bearer credential for an outbound call.
func (s *Store) AccessToken(ctx context.Context) (string, bool) {
	rec, ok := s.Read(ctx)
	if !ok || !rec.Tokens.HasAccess() {
		return "", false
	}
	return rec.Tokens.AccessToken, true
}

// Clear removes the session from both backends. Clearing an empty store
// succeeds and subscribers receive nil.
//
// When a backend refuses the delete, Clear returns ErrClearFailed and the
// store stops serving the old record anyway: reads retry the delete and
// report no session until it succeeds or a new record is written.
// Subscribers are told only once both copies are gone.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.pending = []Backend{s.session, s.durable}
	err := s.retryPending(ctx)
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("session: clear incomplete, holding session closed", slog.Any("error", err))
		return fmt.Errorf("%w: %v", ErrClearFailed, err)
	}
	s.notify(nil)
	return nil
}

// Subscribe registers fn to run synchronously after every Write and Clear.
// The returned func unregisters it.
func (s *Store) Subscribe(fn func(*Record)) func() {
	if fn == nil {
		return func() {}
	}
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

func (s *Store) notify(rec *Record) {
	s.subsMu.Lock()
	fns := make([]func(*Record), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range fns {
		fn(rec)
	}
}
