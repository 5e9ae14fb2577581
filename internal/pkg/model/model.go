package model

import (
	"fmt"
	"time"
)

const socketPath = "/ws/app/v1"

// Device is the slow-changing descriptor of a device bound to the account,
// as returned by /app/bindings.
type Device struct {
	ID              string `json:"did"`
	Alias           string `json:"dev_alias"`
	ProductName     string `json:"product_name"`
	MAC             string `json:"mac"`
	Host            string `json:"host"`
	WsPort          int    `json:"ws_port"`
	WssPort         int    `json:"wss_port"`
	ProtocolVersion int    `json:"protoc"`
	McuSoftVersion  string `json:"mcu_soft_version"`
	McuHardVersion  string `json:"mcu_hard_version"`
	WifiSoftVersion string `json:"wifi_soft_version"`
	IsOnline        bool   `json:"is_online"`
}

// Endpoint returns the websocket URL for the device's gateway. Devices with
// the same endpoint share a single connection.
func (d Device) Endpoint(ssl bool) string {
	if ssl {
		return fmt.Sprintf("wss://%s:%d%s", d.Host, d.WssPort, socketPath)
	}
	return fmt.Sprintf("ws://%s:%d%s", d.Host, d.WsPort, socketPath)
}

// Snapshot is the latest known attribute state for one device.
// Timestamp is epoch seconds, server-reported for poll updates and local for
// push or optimistic updates. A zero timestamp means the device is offline.
type Snapshot struct {
	DeviceID   string     `json:"did"`
	Timestamp  int64      `json:"timestamp"`
	Online     bool       `json:"online"`
	Attributes Attributes `json:"attrs"`
}

// Session holds the account token issued by /app/login.
type Session struct {
	UID       string
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TTL returns the time remaining until the token expires.
func (s Session) TTL(now time.Time) time.Duration {
	return s.ExpiresAt.Sub(now)
}

func (s Session) Valid(now time.Time) bool {
	return s.Token != "" && now.Before(s.ExpiresAt)
}
