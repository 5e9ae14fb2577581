package gizwits

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/gizwits-integration/internal/pkg/config"
	"github.com/anicoll/gizwits-integration/internal/pkg/model"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultPageSize = 20
	englishLang     = "en"

	headerAppID     = "X-Gizwits-Application-Id"
	headerUserToken = "X-Gizwits-User-Token"

	loginPath    = "/app/login"
	bindingsPath = "/app/bindings"

	// The login endpoint only accepts the first 16 characters of a password.
	passwordMaxLen = 16
)

// Client talks to the vendor HTTP API and owns the account session.
type Client struct {
	cfg     *config.GizwitsConfig
	apiRoot string
	hc      *http.Client
	logger  *zap.Logger

	mu         sync.Mutex
	session    model.Session
	hasSession bool

	// closed and re-made around every expiry so multiple consumers observe it.
	notifyExpired chan struct{}

	now func() time.Time
}

func NewClient(cfg *config.GizwitsConfig) *Client {
	return &Client{
		cfg:           cfg,
		apiRoot:       Region(cfg.Region).BaseURL(),
		hc:            &http.Client{Timeout: defaultTimeout},
		logger:        zap.L(),
		notifyExpired: make(chan struct{}),
		now:           time.Now,
	}
}

// Session returns a copy of the current session, if one exists.
func (c *Client) Session() (model.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, c.hasSession
}

func (c *Client) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Token
}

func (c *Client) setSession(s model.Session) {
	c.mu.Lock()
	c.session = s
	c.hasSession = true
	c.mu.Unlock()
}

// clearSession drops the current token. The refresh loop exits on its next
// wake-up once no session exists.
func (c *Client) clearSession() {
	c.mu.Lock()
	c.session = model.Session{}
	c.hasSession = false
	c.mu.Unlock()
}

func truncatePassword(password string) string {
	if len(password) > passwordMaxLen {
		return password[:passwordMaxLen]
	}
	return password
}

// Login authenticates against /app/login and replaces the current session.
// Credential errors surface directly; they are not transient.
func (c *Client) Login(ctx context.Context) error {
	body, err := json.Marshal(loginRequest{
		Username: c.cfg.Username,
		Password: truncatePassword(c.cfg.Password),
		Lang:     englishLang,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiRoot+loginPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerAppID, c.cfg.AppID)

	data, err := c.do(req)
	if err != nil {
		return err
	}
	res := loginResponse{}
	if err := json.Unmarshal(data, &res); err != nil {
		return err
	}
	issued := c.now()
	c.setSession(model.Session{
		UID:       res.UID,
		Token:     res.Token,
		IssuedAt:  issued,
		ExpiresAt: time.Unix(res.ExpireAt, 0),
	})
	c.logger.Info("logged in", zap.String("uid", res.UID), zap.Time("expires_at", time.Unix(res.ExpireAt, 0)))
	return nil
}

// do executes the request and maps failures onto the error taxonomy. The
// response body is decoded as JSON by callers regardless of Content-Type; the
// api is known to misreport it.
func (c *Client) do(req *http.Request) ([]byte, error) {
	res, err := c.hc.Do(req)
	if err != nil {
		return nil, wrapTransportError(err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, wrapTransportError(err)
	}
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return data, nil
	}
	envelope := errorResponse{}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, &APIError{StatusCode: res.StatusCode}
	}
	return nil, errorForCode(res.StatusCode, envelope.ErrorCode)
}

func wrapTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrConnect, err)
}

func (c *Client) getOnce(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiRoot+endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set(headerAppID, c.cfg.AppID)
	req.Header.Set(headerUserToken, c.token())
	data, err := c.do(req)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (c *Client) postOnce(ctx context.Context, endpoint string, in any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiRoot+endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerAppID, c.cfg.AppID)
	req.Header.Set(headerUserToken, c.token())
	_, err = c.do(req)
	return err
}

// get performs an authenticated GET. A token-invalid response triggers an
// immediate re-login and a single retry instead of waiting for the scheduled
// refresh.
func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	err := c.getOnce(ctx, endpoint, out)
	if !errors.Is(err, ErrTokenInvalid) {
		return err
	}
	c.logger.Info("token rejected, re-authenticating", zap.String("endpoint", endpoint))
	if lerr := c.Login(ctx); lerr != nil {
		return lerr
	}
	return c.getOnce(ctx, endpoint, out)
}

func (c *Client) post(ctx context.Context, endpoint string, in any) error {
	err := c.postOnce(ctx, endpoint, in)
	if !errors.Is(err, ErrTokenInvalid) {
		return err
	}
	c.logger.Info("token rejected, re-authenticating", zap.String("endpoint", endpoint))
	if lerr := c.Login(ctx); lerr != nil {
		return lerr
	}
	return c.postOnce(ctx, endpoint, in)
}

// LatestData fetches the most recent attribute state for one device. An
// updated_at of zero means the device is offline.
func (c *Client) LatestData(ctx context.Context, deviceID string) (int64, model.Attributes, error) {
	res := latestResponse{}
	if err := c.get(ctx, fmt.Sprintf("/app/devdata/%s/latest", deviceID), &res); err != nil {
		return 0, nil, err
	}
	return res.UpdatedAt, res.attributes(), nil
}

// Control issues a remote attribute write for the device.
func (c *Client) Control(ctx context.Context, deviceID string, attrs model.Attributes) error {
	return c.post(ctx, fmt.Sprintf("/app/control/%s", deviceID), controlRequest{Attrs: attrs})
}
