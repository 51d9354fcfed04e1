package pairing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	keyLength       = 12
	cleanupInterval = 30 * time.Second
	maxIssueTries   = 8
)

var errExhausted = errors.New("pairing: no free room key")

// PendingKey is a room key handed out but not yet opened by a TV.
type PendingKey struct {
	Room      string    `json:"room"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RoomChecker reports whether a room is currently live.
type RoomChecker interface {
	Has(room string) bool
}

// Manager hands out fresh room keys so a TV can open a room without picking
// a name. It is a convenience, not access control: any valid key can still
// be joined directly.
type Manager struct {
	mu      sync.Mutex
	pending map[string]PendingKey
	ttl     time.Duration
	rooms   RoomChecker
	now     func() time.Time
	log     zerolog.Logger
}

// NewManager creates a Manager. rooms may be nil.
func NewManager(ttl time.Duration, rooms RoomChecker, log zerolog.Logger) *Manager {
	return &Manager{
		pending: make(map[string]PendingKey),
		ttl:     ttl,
		rooms:   rooms,
		now:     time.Now,
		log:     log,
	}
}

// Issue reserves and returns a key that is neither live nor already pending.
func (m *Manager) Issue() (PendingKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := 0; i < maxIssueTries; i++ {
		id, err := uuid.NewRandom()
		if err != nil {
			return PendingKey{}, err
		}
		key := strings.ReplaceAll(id.String(), "-", "")[:keyLength]
		if _, taken := m.pending[key]; taken {
			continue
		}
		if m.rooms != nil && m.rooms.Has(key) {
			continue
		}
		pk := PendingKey{Room: key, ExpiresAt: m.now().Add(m.ttl)}
		m.pending[key] = pk
		m.log.Info().Str("room", key).Time("expires_at", pk.ExpiresAt).Msg("issued room key")
		return pk, nil
	}
	return PendingKey{}, errExhausted
}

// Claim retires a pending key once its room has been opened. It reports
// whether the key was pending and unexpired.
func (m *Manager) Claim(room string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	pk, ok := m.pending[room]
	if !ok {
		return false
	}
	delete(m.pending, room)
	return !m.now().After(pk.ExpiresAt)
}

// Pending returns the number of outstanding keys.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Run evicts expired keys until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.evictExpired()
		}
	}
}

func (m *Manager) evictExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, pk := range m.pending {
		if now.After(pk.ExpiresAt) {
			m.log.Debug().Str("room", key).Msg("room key expired")
			delete(m.pending, key)
		}
	}
}

// IssueHandler serves GET /api/rooms/new.
func (m *Manager) IssueHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pk, err := m.Issue()
		if err != nil {
			m.log.Error().Err(err).Msg("issue room key")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"error": "could not allocate a room key"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		json.NewEncoder(w).Encode(pk)
	}
}
