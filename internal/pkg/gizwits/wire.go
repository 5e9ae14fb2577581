package gizwits

import (
	"encoding/json"

	"github.com/anicoll/gizwits-integration/internal/pkg/model"
)

// ################################
// HTTP API

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Lang     string `json:"lang"`
}

type loginResponse struct {
	UID      string `json:"uid"`
	Token    string `json:"token"`
	ExpireAt int64  `json:"expire_at"`
}

type bindingsResponse struct {
	Devices []model.Device `json:"devices"`
}

// The latest-data endpoint has been observed returning the attribute mapping
// under both "attr" and "attrs".
type latestResponse struct {
	UpdatedAt int64            `json:"updated_at"`
	Attr      model.Attributes `json:"attr"`
	Attrs     model.Attributes `json:"attrs"`
}

func (r latestResponse) attributes() model.Attributes {
	if len(r.Attr) > 0 {
		return r.Attr
	}
	return r.Attrs
}

type controlRequest struct {
	Attrs model.Attributes `json:"attrs"`
}

type errorResponse struct {
	ErrorCode int `json:"error_code"`
}

// ################################
// WebSocket frames

type frame struct {
	Cmd  Command         `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
}

func encodeFrame(cmd Command, data any) ([]byte, error) {
	f := frame{Cmd: cmd}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		f.Data = raw
	}
	return json.Marshal(f)
}

type socketLoginData struct {
	AppID             string `json:"appid"`
	UID               string `json:"uid"`
	Token             string `json:"token"`
	P0Type            string `json:"p0_type"`
	HeartbeatInterval int    `json:"heartbeat_interval"`
	AutoSubscribe     bool   `json:"auto_subscribe"`
}

type didRef struct {
	Did string `json:"did"`
}

type socketLoginResult struct {
	Success   bool `json:"success"`
	ErrorCode int  `json:"error_code"`
}

type socketSubscribeResult struct {
	Success []didRef `json:"success"`
}

type socketNotification struct {
	Did   string           `json:"did"`
	Attrs model.Attributes `json:"attrs"`
}
