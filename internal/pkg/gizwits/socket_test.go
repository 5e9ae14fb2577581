package gizwits

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/gizwits-integration/internal/pkg/config"
	"github.com/anicoll/gizwits-integration/internal/pkg/model"
)

// gateway is a scripted stand-in for the vendor push endpoint.
type gateway struct {
	t       *testing.T
	srv     *httptest.Server
	frames  chan frame
	loginOK bool

	mu       sync.Mutex
	conns    []*websocket.Conn
	accepted int
}

func newGateway(t *testing.T, loginOK bool) *gateway {
	t.Helper()
	gw := &gateway{t: t, frames: make(chan frame, 32), loginOK: loginOK}
	upgrader := websocket.Upgrader{}
	gw.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/app/v1", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		gw.mu.Lock()
		gw.conns = append(gw.conns, conn)
		gw.accepted++
		gw.mu.Unlock()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			f := frame{}
			if err := json.Unmarshal(data, &f); err != nil {
				continue
			}
			gw.frames <- f
			switch f.Cmd {
			case CmdLoginReq:
				if gw.loginOK {
					gw.send(conn, CmdLoginRes, socketLoginResult{Success: true})
				} else {
					gw.send(conn, CmdLoginRes, socketLoginResult{Success: false, ErrorCode: 9999})
				}
			case CmdSubscribeReq:
				refs := []didRef{}
				require.NoError(t, json.Unmarshal(f.Data, &refs))
				gw.send(conn, CmdSubscribeRes, socketSubscribeResult{Success: refs})
			case CmdPing:
				gw.send(conn, CmdPong, nil)
			}
		}
	}))
	t.Cleanup(gw.srv.Close)
	return gw
}

func (g *gateway) send(conn *websocket.Conn, cmd Command, data any) {
	body, err := encodeFrame(cmd, data)
	require.NoError(g.t, err)
	g.mu.Lock()
	defer g.mu.Unlock()
	_ = conn.WriteMessage(websocket.TextMessage, body)
}

// push delivers a server-initiated frame on the most recent connection.
func (g *gateway) push(cmd Command, data any) {
	g.mu.Lock()
	conn := g.conns[len(g.conns)-1]
	g.mu.Unlock()
	g.send(conn, cmd, data)
}

func (g *gateway) connections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.accepted
}

// waitFrame blocks until the gateway has received a frame with the given
// command, discarding everything else.
func waitFrame(t *testing.T, g *gateway, cmd Command) frame {
	t.Helper()
	for {
		select {
		case f := <-g.frames:
			if f.Cmd == cmd {
				return f
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s frame", cmd)
		}
	}
}

func newSocketTestManager(t *testing.T, gw *gateway, deviceIDs ...string) *Manager {
	t.Helper()
	host, portStr, err := net.SplitHostPort(gw.srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	m := New(&config.GizwitsConfig{
		AppID:             "app-id-1",
		Ssl:               false,
		HeartbeatInterval: time.Minute,
	}, make(chan error, 16))
	m.client.setSession(model.Session{UID: "uid-1", Token: "token-1", ExpiresAt: time.Now().Add(time.Hour)})
	for _, id := range deviceIDs {
		m.devices[id] = model.Device{ID: id, Host: host, WsPort: port}
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func (m *Manager) onlySocket(t *testing.T) *socket {
	t.Helper()
	m.mu.RLock()
	defer m.mu.RUnlock()
	require.Len(t, m.sockets, 1)
	for _, sk := range m.sockets {
		return sk
	}
	return nil
}

func (sk *socket) currentState() connState {
	sk.mu.Lock()
	defer sk.mu.Unlock()
	return sk.state
}

func TestSocket_LoginHandshake(t *testing.T) {
	gw := newGateway(t, true)
	m := newSocketTestManager(t, gw, "did-1")

	require.NoError(t, m.Subscribe(context.Background(), "did-1"))

	login := waitFrame(t, gw, CmdLoginReq)
	data := socketLoginData{}
	require.NoError(t, json.Unmarshal(login.Data, &data))
	assert.Equal(t, "app-id-1", data.AppID)
	assert.Equal(t, "uid-1", data.UID)
	assert.Equal(t, "token-1", data.Token)
	assert.Equal(t, "attrs_v4", data.P0Type)
	assert.Equal(t, 60, data.HeartbeatInterval)
	assert.False(t, data.AutoSubscribe)

	sub := waitFrame(t, gw, CmdSubscribeReq)
	refs := []didRef{}
	require.NoError(t, json.Unmarshal(sub.Data, &refs))
	assert.Equal(t, []didRef{{Did: "did-1"}}, refs)

	sk := m.onlySocket(t)
	assert.Eventually(t, func() bool {
		return sk.currentState() == stateSubscribed
	}, 2*time.Second, 10*time.Millisecond)
}

// Devices behind the same gateway endpoint share one connection, and adding a
// device re-subscribes the full set.
func TestSocket_SharedEndpoint(t *testing.T) {
	gw := newGateway(t, true)
	m := newSocketTestManager(t, gw, "did-1", "did-2")

	require.NoError(t, m.Subscribe(context.Background(), "did-1"))
	first := waitFrame(t, gw, CmdSubscribeReq)
	refs := []didRef{}
	require.NoError(t, json.Unmarshal(first.Data, &refs))
	require.Equal(t, []didRef{{Did: "did-1"}}, refs)

	sk := m.onlySocket(t)
	require.Eventually(t, func() bool {
		return sk.currentState() == stateSubscribed
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Subscribe(context.Background(), "did-2"))
	second := waitFrame(t, gw, CmdSubscribeReq)
	refs = []didRef{}
	require.NoError(t, json.Unmarshal(second.Data, &refs))
	assert.ElementsMatch(t, []didRef{{Did: "did-1"}, {Did: "did-2"}}, refs)

	assert.Equal(t, 1, gw.connections())
	m.mu.RLock()
	assert.Len(t, m.sockets, 1)
	m.mu.RUnlock()
}

func TestSocket_LoginRejected(t *testing.T) {
	gw := newGateway(t, false)
	m := newSocketTestManager(t, gw, "did-1")

	require.NoError(t, m.Subscribe(context.Background(), "did-1"))
	waitFrame(t, gw, CmdLoginReq)

	sk := m.onlySocket(t)
	assert.Eventually(t, func() bool {
		sk.mu.Lock()
		defer sk.mu.Unlock()
		return sk.state == stateDisconnected && sk.loginRetried
	}, 2*time.Second, 10*time.Millisecond)

	// a single reconnect attempt is made, never a storm
	assert.Eventually(t, func() bool { return gw.connections() == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, gw.connections())

	// the rejected connection never subscribed
	for {
		select {
		case f := <-gw.frames:
			assert.NotEqual(t, CmdSubscribeReq, f.Cmd)
		default:
			return
		}
	}
}

func TestSocket_NotificationUpdatesStore(t *testing.T) {
	gw := newGateway(t, true)
	m := newSocketTestManager(t, gw, "did-1")

	require.NoError(t, m.Subscribe(context.Background(), "did-1"))
	waitFrame(t, gw, CmdSubscribeReq)

	gw.push(CmdNotification, socketNotification{
		Did:   "did-1",
		Attrs: model.Attributes{"temp": model.IntValue(23)},
	})

	assert.Eventually(t, func() bool {
		snap, ok := m.Snapshot("did-1")
		return ok && snap.Online && snap.Attributes["temp"] == model.IntValue(23)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSocket_PartialNotificationMerges(t *testing.T) {
	gw := newGateway(t, true)
	m := newSocketTestManager(t, gw, "did-1")

	require.NoError(t, m.Subscribe(context.Background(), "did-1"))
	waitFrame(t, gw, CmdSubscribeReq)

	gw.push(CmdNotification, socketNotification{Did: "did-1", Attrs: model.Attributes{"a": model.IntValue(1), "b": model.IntValue(2)}})
	require.Eventually(t, func() bool {
		snap, ok := m.Snapshot("did-1")
		return ok && len(snap.Attributes) == 2
	}, 2*time.Second, 10*time.Millisecond)

	gw.push(CmdNotification, socketNotification{Did: "did-1", Attrs: model.Attributes{"b": model.IntValue(3)}})
	assert.Eventually(t, func() bool {
		snap, _ := m.Snapshot("did-1")
		return snap.Attributes["a"] == model.IntValue(1) && snap.Attributes["b"] == model.IntValue(3)
	}, 2*time.Second, 10*time.Millisecond)
}

// Unrecognised and malformed frames must not break the receive loop.
func TestSocket_IgnoresUnknownFrames(t *testing.T) {
	gw := newGateway(t, true)
	m := newSocketTestManager(t, gw, "did-1")

	require.NoError(t, m.Subscribe(context.Background(), "did-1"))
	waitFrame(t, gw, CmdSubscribeReq)

	sk := m.onlySocket(t)
	gw.mu.Lock()
	conn := gw.conns[0]
	gw.mu.Unlock()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"cmd":"mystery_cmd","data":{}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json at all`)))

	gw.push(CmdNotification, socketNotification{Did: "did-1", Attrs: model.Attributes{"temp": model.IntValue(5)}})
	assert.Eventually(t, func() bool {
		snap, ok := m.Snapshot("did-1")
		return ok && snap.Attributes["temp"] == model.IntValue(5)
	}, 2*time.Second, 10*time.Millisecond)
	assert.NotEqual(t, stateDisconnected, sk.currentState())
}

func TestManager_Close_TearsDownSockets(t *testing.T) {
	gw := newGateway(t, true)
	m := newSocketTestManager(t, gw, "did-1")

	require.NoError(t, m.Subscribe(context.Background(), "did-1"))
	waitFrame(t, gw, CmdSubscribeReq)
	sk := m.onlySocket(t)

	require.NoError(t, m.Close())
	assert.Equal(t, stateDisconnected, sk.currentState())
	assert.True(t, sk.conn.IsClosed())
}
