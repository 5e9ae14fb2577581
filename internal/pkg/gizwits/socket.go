package gizwits

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/gizwits-integration/internal/pkg/contxt"
	ws "github.com/anicoll/gizwits-integration/pkg/sockets"
)

const p0TypeAttrs = "attrs_v4"

type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
	stateAuthenticated
	stateSubscribed
	stateClosing
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	case stateAuthenticated:
		return "authenticated"
	case stateSubscribed:
		return "subscribed"
	case stateClosing:
		return "closing"
	}
	return "disconnected"
}

// socket is one push connection to a gateway endpoint. All devices whose
// endpoint resolves to the same host:port share the same socket.
type socket struct {
	mgr    *Manager
	url    string
	logger *zap.Logger

	mu        sync.Mutex
	state     connState
	conn      ws.Connection
	pending   []string // every did requested for this endpoint
	confirmed []string // dids acknowledged by subscribe_res
	// guards against a login-failure -> reconnect -> login-failure storm;
	// reset on any successful login.
	loginRetried bool
}

func newSocket(m *Manager, url string) *socket {
	return &socket{
		mgr:    m,
		url:    url,
		logger: zap.L().With(zap.String("endpoint", url)),
	}
}

// addDevice records the subscription and ensures the connection exists. When
// a login handshake is already in flight the subscribe is flushed once
// authentication completes.
func (sk *socket) addDevice(ctx context.Context, deviceID string) error {
	sk.mu.Lock()
	if !lo.Contains(sk.pending, deviceID) {
		sk.pending = append(sk.pending, deviceID)
	}
	state := sk.state
	sk.mu.Unlock()

	switch state {
	case stateDisconnected:
		return sk.connect(ctx)
	case stateAuthenticated, stateSubscribed:
		return sk.subscribe()
	default:
		return nil
	}
}

func (sk *socket) connect(ctx context.Context) error {
	ping, err := encodeFrame(CmdPing, nil)
	if err != nil {
		return err
	}
	opts := []func(*ws.Conn){
		ws.OnConnected(sk.onConnected),
		ws.OnMessage(sk.onMessage),
		ws.OnError(sk.onError),
		ws.WithPingInterval(sk.mgr.cfg.HeartbeatInterval),
		ws.WithPingMsg(ping),
	}
	if sk.mgr.cfg.InsecureSkipVerify {
		opts = append(opts, ws.InsecureSkipVerify())
	}
	conn := ws.New(opts...)

	sk.mu.Lock()
	sk.state = stateConnecting
	sk.conn = conn
	sk.mu.Unlock()

	sk.logger.Debug("dialling push endpoint")
	if err := conn.Dial(ctx, sk.url, ""); err != nil {
		sk.mu.Lock()
		sk.state = stateDisconnected
		sk.mu.Unlock()
		return wrapTransportError(err)
	}
	return nil
}

// onConnected sends the login frame. Authentication completes only when a
// successful login_res arrives.
func (sk *socket) onConnected(c ws.Connection) {
	sk.mu.Lock()
	sk.state = stateConnected
	sk.mu.Unlock()

	session, ok := sk.mgr.client.Session()
	if !ok {
		sk.logger.Error("no session available for socket login")
		sk.disconnect()
		return
	}
	body, err := encodeFrame(CmdLoginReq, socketLoginData{
		AppID:             sk.mgr.cfg.AppID,
		UID:               session.UID,
		Token:             session.Token,
		P0Type:            p0TypeAttrs,
		HeartbeatInterval: int(sk.mgr.cfg.HeartbeatInterval.Seconds()),
		AutoSubscribe:     false,
	})
	if err != nil {
		sk.mgr.errChan <- err
		return
	}
	if err := c.Send(ws.Msg{Body: body}); err != nil {
		sk.logger.Error("failed to send login frame", zap.Error(err))
	}
}

func (sk *socket) onMessage(data []byte, _ ws.Connection) {
	f := frame{}
	if err := json.Unmarshal(data, &f); err != nil {
		// Malformed frames are skipped, never fatal to the receive loop.
		sk.logger.Warn("skipping malformed frame", zap.Error(err), zap.ByteString("frame", data))
		return
	}
	switch f.Cmd {
	case CmdLoginRes:
		sk.handleLoginResponse(f.Data)
	case CmdSubscribeRes:
		sk.handleSubscribeResponse(f.Data)
	case CmdNotification:
		sk.handleNotification(f.Data)
	case CmdPong:
		sk.logger.Debug("received pong")
	default:
		sk.logger.Debug("ignoring unrecognised command", zap.String("cmd", f.Cmd.String()))
	}
}

func (sk *socket) handleLoginResponse(data []byte) {
	res := socketLoginResult{}
	if err := json.Unmarshal(data, &res); err != nil {
		sk.logger.Warn("skipping malformed login response", zap.Error(err))
		return
	}
	if !res.Success {
		sk.logger.Warn("socket login failed", zap.Int("error_code", res.ErrorCode))
		sk.disconnect()

		sk.mu.Lock()
		retried := sk.loginRetried
		sk.loginRetried = true
		sk.mu.Unlock()
		if retried {
			// Leave it to the next subscribe call to rebuild the connection.
			return
		}
		go sk.retryLogin(res.ErrorCode == codeTokenInvalid)
		return
	}

	sk.mu.Lock()
	sk.state = stateAuthenticated
	sk.loginRetried = false
	conn := sk.conn
	sk.mu.Unlock()
	sk.logger.Debug("socket authenticated")

	// Heartbeat runs from authentication for the life of the connection.
	conn.StartPing()
	if err := sk.subscribe(); err != nil {
		sk.logger.Error("failed to send subscribe request", zap.Error(err))
	}
}

// retryLogin reconnects once after a failed socket login, re-authenticating
// the session first when the failure indicated an invalid token.
func (sk *socket) retryLogin(tokenInvalid bool) {
	ctx := contxt.NewContext(defaultTimeout)
	if tokenInvalid {
		if err := sk.mgr.client.Login(ctx); err != nil {
			sk.logger.Error("re-authentication after socket login failure failed", zap.Error(err))
			return
		}
	}
	if err := sk.connect(ctx); err != nil {
		sk.logger.Error("socket reconnect failed", zap.Error(err))
	}
}

func (sk *socket) handleSubscribeResponse(data []byte) {
	res := socketSubscribeResult{}
	if err := json.Unmarshal(data, &res); err != nil {
		sk.logger.Warn("skipping malformed subscribe response", zap.Error(err))
		return
	}
	sk.mu.Lock()
	for _, ref := range res.Success {
		if !lo.Contains(sk.confirmed, ref.Did) {
			sk.confirmed = append(sk.confirmed, ref.Did)
		}
		if !lo.Contains(sk.pending, ref.Did) {
			sk.pending = append(sk.pending, ref.Did)
		}
	}
	sk.state = stateSubscribed
	confirmed := len(sk.confirmed)
	sk.mu.Unlock()
	sk.logger.Debug("subscription confirmed", zap.Int("devices", confirmed))
}

func (sk *socket) handleNotification(data []byte) {
	n := socketNotification{}
	if err := json.Unmarshal(data, &n); err != nil {
		sk.logger.Warn("skipping malformed notification", zap.Error(err))
		return
	}
	if n.Did == "" {
		sk.logger.Warn("notification without device id")
		return
	}
	sk.mgr.store.ApplyPushUpdate(n.Did, n.Attrs)
}

// subscribe re-sends the full current subscription set for this connection.
// The vendor protocol has no incremental subscribe; adding one device means
// re-subscribing all devices on the connection.
func (sk *socket) subscribe() error {
	sk.mu.Lock()
	dids := slices.Clone(sk.pending)
	conn := sk.conn
	sk.mu.Unlock()
	if conn == nil {
		return ErrConnect
	}
	body, err := encodeFrame(CmdSubscribeReq, lo.Map(dids, func(did string, _ int) didRef {
		return didRef{Did: did}
	}))
	if err != nil {
		return err
	}
	return conn.Send(ws.Msg{Body: body})
}

func (sk *socket) onError(err error) {
	sk.logger.Warn("socket connection lost", zap.Error(err))
	sk.disconnect()
}

// disconnect closes the transport and resets the state machine. The next
// subscribe call for this endpoint transparently reconnects.
func (sk *socket) disconnect() {
	sk.mu.Lock()
	conn := sk.conn
	sk.state = stateDisconnected
	sk.confirmed = nil
	sk.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (sk *socket) close() {
	sk.mu.Lock()
	sk.state = stateClosing
	sk.mu.Unlock()
	sk.disconnect()
}
