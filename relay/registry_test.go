package relay

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(role Role, room string) *Client {
	return newClient(nil, role, room, 16)
}

func recv(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case msg := <-c.send:
		var m map[string]any
		require.NoError(t, json.Unmarshal(msg, &m))
		return m
	case <-time.After(time.Second):
		t.Fatal("expected a queued message")
		return nil
	}
}

func assertIdle(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected message %s", msg)
	default:
	}
}

func TestRemoteJoinReceivesStatus(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())

	lonely := testClient(RoleRemote, "a")
	reg.Join("a", lonely)
	assert.Equal(t, map[string]any{"type": "status", "tvConnected": false}, recv(t, lonely))

	tv := testClient(RoleTV, "a")
	reg.Join("a", tv)
	assert.Equal(t, map[string]any{"type": "status", "tvConnected": true}, recv(t, lonely))
	assertIdle(t, tv)

	late := testClient(RoleRemote, "a")
	reg.Join("a", late)
	assert.Equal(t, map[string]any{"type": "status", "tvConnected": true}, recv(t, late))

	tvs, remotes, ok := reg.Stats("a")
	assert.True(t, ok)
	assert.Equal(t, 1, tvs)
	assert.Equal(t, 2, remotes)
}

func TestLastTVLeavingNotifiesRemotes(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	tv1 := testClient(RoleTV, "a")
	tv2 := testClient(RoleTV, "a")
	remote := testClient(RoleRemote, "a")

	reg.Join("a", tv1)
	reg.Join("a", tv2)
	reg.Join("a", remote)
	recv(t, remote)

	reg.Leave("a", tv1)
	assertIdle(t, remote)

	reg.Leave("a", tv2)
	assert.Equal(t, map[string]any{"type": "status", "tvConnected": false}, recv(t, remote))

	// A second leave of the same client changes nothing.
	reg.Leave("a", tv2)
	assertIdle(t, remote)
	assert.True(t, reg.Has("a"))
}

func TestEmptyRoomIsDeleted(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	tv := testClient(RoleTV, "a")
	remote := testClient(RoleRemote, "a")
	reg.Join("a", tv)
	reg.Join("a", remote)

	reg.Leave("a", remote)
	assert.True(t, reg.Has("a"))
	reg.Leave("a", tv)
	assert.False(t, reg.Has("a"))
	assert.Equal(t, 0, reg.RoomCount())

	// A fresh join sees an empty room.
	again := testClient(RoleRemote, "a")
	reg.Join("a", again)
	assert.Equal(t, false, recv(t, again)["tvConnected"])
	tvs, remotes, _ := reg.Stats("a")
	assert.Equal(t, 0, tvs)
	assert.Equal(t, 1, remotes)
}

func TestLeaveUnknownRoom(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	reg.Leave("missing", testClient(RoleTV, "missing"))
	assert.Equal(t, 0, reg.RoomCount())
}

func TestBroadcastSkipsClosedAndOtherRooms(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	open := testClient(RoleRemote, "a")
	closed := testClient(RoleRemote, "a")
	other := testClient(RoleRemote, "b")
	tv := testClient(RoleTV, "a")
	for _, c := range []*Client{open, closed} {
		reg.Join("a", c)
		recv(t, c)
	}
	reg.Join("b", other)
	recv(t, other)
	reg.Join("a", tv)
	recv(t, open)
	recv(t, closed)

	closed.Close()
	require.NoError(t, reg.BroadcastToRemotes("a", map[string]any{"type": "tv_state", "paused": true}))

	assert.Equal(t, true, recv(t, open)["paused"])
	assertIdle(t, closed)
	assertIdle(t, other)
	assertIdle(t, tv)
}

func TestForwardToTVsPassesRawBytes(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	tv1 := testClient(RoleTV, "a")
	tv2 := testClient(RoleTV, "a")
	reg.Join("a", tv1)
	reg.Join("a", tv2)

	raw := json.RawMessage(`{"type":"command", "action":"seek", "delta": 10, "extra":{"x":[1,2]}}`)
	require.NoError(t, reg.ForwardToTVs("a", raw))

	for _, c := range []*Client{tv1, tv2} {
		select {
		case msg := <-c.send:
			assert.Equal(t, string(raw), string(msg))
		case <-time.After(time.Second):
			t.Fatal("tv did not receive command")
		}
	}
}

func TestSendDropsWhenQueueFull(t *testing.T) {
	c := newClient(nil, RoleRemote, "a", 1)
	assert.True(t, c.Send([]byte("1")))
	assert.False(t, c.Send([]byte("2")))
	c.Close()
	c.Close()
	assert.False(t, c.IsOpen())
}
