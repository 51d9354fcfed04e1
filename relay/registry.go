package relay

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// room holds the two connection roles.
type room struct {
	tvs     map[*Client]struct{}
	remotes map[*Client]struct{}
}

func newRoom() *room {
	return &room{
		tvs:     make(map[*Client]struct{}),
		remotes: make(map[*Client]struct{}),
	}
}

func (r *room) empty() bool {
	return len(r.tvs) == 0 && len(r.remotes) == 0
}

// Registry maps room keys to their connected TVs and remotes. Rooms are
// created on first join and removed as soon as the last client leaves.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*room
	log   zerolog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		rooms: make(map[string]*room),
		log:   log,
	}
}

// Join adds c to its role's set in the room. A remote immediately learns
// whether a TV is present; a TV announces itself to every remote.
func (r *Registry) Join(key string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.rooms[key]
	if rm == nil {
		rm = newRoom()
		r.rooms[key] = rm
		r.log.Info().Str("room", key).Msg("room created")
	}

	switch c.Role {
	case RoleTV:
		rm.tvs[c] = struct{}{}
		r.sendLocked(rm.remotes, newStatus(true))
	case RoleRemote:
		rm.remotes[c] = struct{}{}
		if msg, err := encode(newStatus(len(rm.tvs) > 0)); err == nil {
			c.Send(msg)
		}
	}
	r.log.Info().Str("room", key).Str("role", string(c.Role)).
		Int("tvs", len(rm.tvs)).Int("remotes", len(rm.remotes)).Msg("client joined")
}

// Leave removes c from the room. It is idempotent.
func (r *Registry) Leave(key string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.rooms[key]
	if rm == nil {
		return
	}

	_, wasTV := rm.tvs[c]
	_, wasRemote := rm.remotes[c]
	delete(rm.tvs, c)
	delete(rm.remotes, c)
	if !wasTV && !wasRemote {
		return
	}
	r.log.Info().Str("room", key).Str("role", string(c.Role)).Msg("client left")

	if wasTV && len(rm.tvs) == 0 {
		r.sendLocked(rm.remotes, newStatus(false))
	}
	if rm.empty() {
		delete(r.rooms, key)
		r.log.Info().Str("room", key).Msg("room empty, deleted")
	}
}

// BroadcastToRemotes sends payload to every open remote in the room.
func (r *Registry) BroadcastToRemotes(key string, payload any) error {
	return r.deliver(key, RoleRemote, payload)
}

// ForwardToTVs sends payload to every open TV in the room.
func (r *Registry) ForwardToTVs(key string, payload any) error {
	return r.deliver(key, RoleTV, payload)
}

func (r *Registry) deliver(key string, to Role, payload any) error {
	msg, err := encode(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", to, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.rooms[key]
	if rm == nil {
		return nil
	}
	if to == RoleTV {
		r.sendRawLocked(rm.tvs, msg)
	} else {
		r.sendRawLocked(rm.remotes, msg)
	}
	return nil
}

func (r *Registry) sendLocked(set map[*Client]struct{}, payload any) {
	msg, err := encode(payload)
	if err != nil {
		r.log.Error().Err(err).Msg("encode payload")
		return
	}
	r.sendRawLocked(set, msg)
}

func (r *Registry) sendRawLocked(set map[*Client]struct{}, msg []byte) {
	for c := range set {
		if !c.IsOpen() {
			continue
		}
		if !c.Send(msg) {
			r.log.Debug().Str("room", c.Room).Str("role", string(c.Role)).Msg("send queue full, message dropped")
		}
	}
}

// Stats reports the membership of a room and whether it exists.
func (r *Registry) Stats(key string) (tvs, remotes int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm := r.rooms[key]
	if rm == nil {
		return 0, 0, false
	}
	return len(rm.tvs), len(rm.remotes), true
}

// Has reports whether the room currently exists.
func (r *Registry) Has(key string) bool {
	_, _, ok := r.Stats(key)
	return ok
}

// RoomCount returns the number of live rooms.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
