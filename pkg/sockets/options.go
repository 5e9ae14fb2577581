package sockets

import "time"

func WithPingInterval(d time.Duration) func(*Conn) {
	return func(c *Conn) {
		c.pingInterval = d
	}
}

func WithPingMsg(msg []byte) func(*Conn) {
	return func(c *Conn) {
		c.pingMsg = msg
	}
}

func WithHandshakeTimeout(d time.Duration) func(*Conn) {
	return func(c *Conn) {
		c.handshakeTimeout = d
	}
}

func InsecureSkipVerify() func(*Conn) {
	return func(c *Conn) {
		c.sslSkipVerify = true
	}
}

func OnMessage(f func([]byte, Connection)) func(*Conn) {
	return func(c *Conn) {
		c.onMessage = f
	}
}

func OnError(f func(error)) func(*Conn) {
	return func(c *Conn) {
		c.onError = f
	}
}

func OnConnected(f func(Connection)) func(*Conn) {
	return func(c *Conn) {
		c.onConnected = f
	}
}
