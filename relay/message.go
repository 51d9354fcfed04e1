package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
)

// Message types on the wire.
const (
	TypeState   = "state"
	TypeCommand = "command"
	TypeTVState = "tv_state"
	TypeStatus  = "status"
)

var allowedActions = map[string]struct{}{
	"play":            {},
	"pause":           {},
	"playpause":       {},
	"stop":            {},
	"seek":            {},
	"seekTo":          {},
	"seek_percent":    {},
	"volume_set":      {},
	"mute":            {},
	"unmute":          {},
	"toggle_mute":     {},
	"rate_set":        {},
	"fullscreen":      {},
	"exit_fullscreen": {},
	"load":            {},
}

// IsAllowedAction reports whether a remote may send the given command action.
func IsAllowedAction(action string) bool {
	_, ok := allowedActions[action]
	return ok
}

// StatusMessage tells remotes whether a TV is present in the room.
type StatusMessage struct {
	Type        string `json:"type"`
	TVConnected bool   `json:"tvConnected"`
}

func newStatus(tvConnected bool) StatusMessage {
	return StatusMessage{Type: TypeStatus, TVConnected: tvConnected}
}

// PlaybackState is what a TV reports about its player. Optional fields are
// nil when the TV did not send a finite value.
type PlaybackState struct {
	Type     string   `json:"type"`
	Paused   bool     `json:"paused"`
	Muted    bool     `json:"muted"`
	Volume   *float64 `json:"volume,omitempty"`
	Rate     *float64 `json:"rate,omitempty"`
	Current  *string  `json:"current,omitempty"`
	Time     *float64 `json:"time,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
}

var (
	errNotObject    = errors.New("message is not a JSON object")
	errTrailingData = errors.New("trailing data after JSON object")
)

// inbound is a decoded client message. Numbers are kept as json.Number so
// out-of-range literals survive decoding and can be rejected as non-finite.
type inbound map[string]any

func decodeInbound(data []byte) (inbound, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errNotObject
	}
	// A frame is exactly one object; anything after it, whitespace aside,
	// makes the whole frame malformed.
	if _, err := dec.Token(); err != io.EOF {
		return nil, errTrailingData
	}
	return inbound(m), nil
}

func (m inbound) str(key string) string {
	s, _ := m[key].(string)
	return s
}

func (m inbound) msgType() string { return m.str("type") }

func (m inbound) action() string { return m.str("action") }

// playbackState builds the tv_state forwarded to remotes.
func (m inbound) playbackState() PlaybackState {
	st := PlaybackState{
		Type:   TypeTVState,
		Paused: truthy(m["paused"]),
		Muted:  truthy(m["muted"]),
	}
	if v, ok := finite(m["volume"]); ok {
		v = math.Min(1, math.Max(0, v))
		st.Volume = &v
	}
	if v, ok := finite(m["rate"]); ok {
		st.Rate = &v
	}
	if v, ok := finite(m["time"]); ok {
		st.Time = &v
	}
	if v, ok := finite(m["duration"]); ok {
		st.Duration = &v
	}
	if s, ok := m["current"].(string); ok {
		st.Current = &s
	}
	return st
}

// finite coerces a JSON number or numeric string to a float64 and rejects
// NaN and the infinities.
func finite(v any) (float64, bool) {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
	case float64:
		s = strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return 0, false
	}
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case string:
		return t != ""
	case nil:
		return false
	default:
		return true
	}
}

// encode serializes an outbound payload. Raw messages pass through untouched
// so forwarded commands reach the TV byte for byte.
func encode(payload any) ([]byte, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(payload)
}
