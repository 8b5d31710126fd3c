package session

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nantokaworks/spin-overlay/internal/kvstore"
	"github.com/nantokaworks/spin-overlay/internal/types"
)

const (
	// SessionKeyPrefix namespaces session records in the store.
	SessionKeyPrefix = "spin:session:"

	// DefaultTTL is how long a waiting session stays alive.
	DefaultTTL = 300 * time.Second

	// DefaultExpiredGrace is how long an expired record stays visible before
	// it disappears from the store entirely.
	DefaultExpiredGrace = 60 * time.Second
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("session not found")
	ErrAlreadyResolved = errors.New("session already resolved")
)

// generateSessionID returns 8 cryptographically random bytes, hex-encoded.
var generateSessionID = func() (string, error) {
	b := make([]byte, 8)
	if _, err := crand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Manager owns spin session records and their state machine. All mutation
// goes through it; the webhook handler and live-status stream only hold a
// record for the duration of one request.
type Manager struct {
	store        kvstore.Store
	clock        clockwork.Clock
	ttl          time.Duration
	expiredGrace time.Duration

	// mu serializes read-modify-write cycles. The store has no compare-and-swap,
	// so this is what guarantees at most one chosen transition per session.
	// If several server processes ever share one store, the residual
	// read-then-write race across processes is an accepted limitation.
	mu sync.Mutex
}

type Option func(*Manager)

func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

func WithExpiredGrace(grace time.Duration) Option {
	return func(m *Manager) { m.expiredGrace = grace }
}

func NewManager(store kvstore.Store, opts ...Option) *Manager {
	m := &Manager{
		store:        store,
		clock:        clockwork.NewRealClock(),
		ttl:          DefaultTTL,
		expiredGrace: DefaultExpiredGrace,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateSession persists a new waiting session for the given option list.
// Fails with ErrInvalidInput when fewer than 2 items are supplied.
func (m *Manager) CreateSession(ctx context.Context, items []string) (*types.SpinSession, error) {
	if len(items) < 2 {
		return nil, fmt.Errorf("%w: at least 2 items required", ErrInvalidInput)
	}

	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	sess := &types.SpinSession{
		ID:        id,
		Items:     append([]string(nil), items...),
		Status:    types.StatusWaiting,
		CreatedAt: m.clock.Now().UnixMilli(),
	}

	if err := m.writeSession(ctx, sess, m.ttl); err != nil {
		return nil, err
	}
	return sess, nil
}

// GetSession reads a session record. Returns ErrNotFound when the id is
// unknown or the record has expired out of the store.
func (m *Manager) GetSession(ctx context.Context, id string) (*types.SpinSession, error) {
	raw, ok, err := m.store.Get(ctx, SessionKeyPrefix+id)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}

	var sess types.SpinSession
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session %q: %w", id, err)
	}
	return &sess, nil
}

// UpdateSessionChoice records a remote participant's decision. Only a waiting
// session accepts a choice; the write preserves the record's remaining TTL so
// a late decision cannot extend the session's life.
func (m *Manager) UpdateSessionChoice(ctx context.Context, id string, chosenIndex int, chosenBy string) (*types.SpinSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != types.StatusWaiting {
		return nil, ErrAlreadyResolved
	}
	if chosenIndex < 0 || chosenIndex >= len(sess.Items) {
		return nil, fmt.Errorf("%w: index %d out of range", ErrInvalidInput, chosenIndex)
	}

	sess.Status = types.StatusChosen
	sess.ChosenIndex = &chosenIndex
	sess.ChosenBy = chosenBy

	remaining, hasTTL, err := m.store.TTL(ctx, SessionKeyPrefix+id)
	if err != nil {
		return nil, fmt.Errorf("failed to read session ttl: %w", err)
	}

	if hasTTL && remaining > 0 {
		err = m.writeSession(ctx, sess, remaining)
	} else {
		// No TTL left to preserve; keep the record without one rather than
		// resetting to the full duration.
		err = m.writeSessionNoTTL(ctx, sess)
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// MarkSessionExpired flips a session to expired and keeps it visible for a
// short grace window. Idempotent; a no-op when the session no longer exists.
func (m *Manager) MarkSessionExpired(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.GetSession(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	sess.Status = types.StatusExpired
	return m.writeSession(ctx, sess, m.expiredGrace)
}

func (m *Manager) writeSession(ctx context.Context, sess *types.SpinSession, ttl time.Duration) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := m.store.SetEx(ctx, SessionKeyPrefix+sess.ID, string(raw), ttl); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

func (m *Manager) writeSessionNoTTL(ctx context.Context, sess *types.SpinSession) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := m.store.Set(ctx, SessionKeyPrefix+sess.ID, string(raw)); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}
