package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"tvremote/config"
	"tvremote/logger"
)

// RoomClaimer is told when a TV opens a room, so a pending pairing key can be
// retired.
type RoomClaimer interface {
	Claim(room string) bool
}

// Hub routes messages between the TVs and remotes of each room.
type Hub struct {
	registry *Registry
	cfg      config.WebSocketConfig
	origins  []string
	claimer  RoomClaimer
	log      zerolog.Logger
}

// NewHub creates a new Hub. claimer may be nil.
func NewHub(registry *Registry, cfg config.WebSocketConfig, origins []string, claimer RoomClaimer, log zerolog.Logger) *Hub {
	return &Hub{
		registry: registry,
		cfg:      cfg,
		origins:  originPatterns(origins),
		claimer:  claimer,
		log:      log,
	}
}

// originPatterns turns configured origins such as "https://tv.example.com"
// into the host patterns websocket.Accept matches against.
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			o = u.Host
		}
		out = append(out, o)
	}
	if len(out) == 0 {
		out = []string{"*"}
	}
	return out
}

// Registry returns the room registry the hub routes through.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// ServeWS upgrades the request and runs the connection until it closes.
// Query parameters: role=tv|remote and room=<key>.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	role, roleOK := ParseRole(query.Get("role"))
	roomKey, roomOK := ParseRoomKey(query.Get("room"))

	log := h.log
	if l, ok := logger.FromContext(r.Context()); ok {
		log = l
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	if !roleOK || !roomOK {
		log.Info().Str("role", query.Get("role")).Str("room", query.Get("room")).Msg("rejecting connection: invalid role or room")
		c.Close(websocket.StatusPolicyViolation, "invalid role or room")
		return
	}
	defer c.CloseNow()

	if h.cfg.MaxMessageSize > 0 {
		c.SetReadLimit(h.cfg.MaxMessageSize)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	log = log.With().Str(logger.FieldRoom, roomKey).Str(logger.FieldRole, string(role)).Logger()
	client := newClient(c, role, roomKey, h.cfg.SendBuffer)
	go client.writePump(ctx, h.cfg.WriteTimeout, h.cfg.PingInterval, log)

	h.registry.Join(roomKey, client)
	if role == RoleTV && h.claimer != nil && h.claimer.Claim(roomKey) {
		log.Info().Msg("pairing key claimed")
	}

	defer func() {
		client.Close()
		h.registry.Leave(roomKey, client)
		c.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("read loop ended")
			return
		}
		h.handleMessage(client, data, log)
	}
}

// handleMessage routes one inbound message. Anything malformed or not meant
// for the sender's role is dropped without a reply.
func (h *Hub) handleMessage(c *Client, data []byte, log zerolog.Logger) {
	msg, err := decodeInbound(data)
	if err != nil {
		log.Debug().Err(err).Msg("ignoring malformed message")
		return
	}

	switch {
	case c.Role == RoleTV && msg.msgType() == TypeState:
		err = h.registry.BroadcastToRemotes(c.Room, msg.playbackState())
	case c.Role == RoleRemote && msg.msgType() == TypeCommand:
		if !IsAllowedAction(msg.action()) {
			log.Debug().Str("action", msg.action()).Msg("ignoring command outside allow-list")
			return
		}
		err = h.registry.ForwardToTVs(c.Room, json.RawMessage(data))
	default:
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("relay failed")
	}
}
