package gizwits

// Command identifies a websocket frame.
type Command string

func (c Command) String() string {
	return string(c)
}

const (
	CmdLoginReq     Command = "login_req"
	CmdLoginRes     Command = "login_res"
	CmdSubscribeReq Command = "subscribe_req"
	CmdSubscribeRes Command = "subscribe_res"
	CmdNotification Command = "s2c_noti"
	CmdPing         Command = "ping"
	CmdPong         Command = "pong"
)

// Region of the vendor cloud.
type Region string

const (
	RegionUS      Region = "us"
	RegionEU      Region = "eu"
	RegionDefault Region = "default"
)

// BaseURL returns the api root for a region.
func (r Region) BaseURL() string {
	switch r {
	case RegionUS:
		return "https://usapi.gizwits.com"
	case RegionEU:
		return "https://euapi.gizwits.com"
	}
	return "https://api.gizwits.com"
}
