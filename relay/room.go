package relay

import (
	"regexp"
	"strings"
)

// Role is the side of the room a connection plays.
type Role string

const (
	RoleTV     Role = "tv"
	RoleRemote Role = "remote"
)

var roomKeyPattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ParseRoomKey lowercases a room key and reports whether it is valid.
func ParseRoomKey(s string) (string, bool) {
	key := strings.ToLower(s)
	if !roomKeyPattern.MatchString(key) {
		return "", false
	}
	return key, true
}

// ParseRole maps the role query parameter to a Role.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(s)) {
	case RoleTV:
		return RoleTV, true
	case RoleRemote:
		return RoleRemote, true
	}
	return "", false
}
