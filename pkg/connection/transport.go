package connection

import (
	"net"
	"time"
)

// Transport is the minimal surface a Connection needs from an underlying
// framed duplex socket. *websocket.Conn (github.com/gorilla/websocket)
// satisfies this directly; tests substitute a fake.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
	RemoteAddr() net.Addr
}
