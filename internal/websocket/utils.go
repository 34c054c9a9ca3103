package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// Writer serializes writes to one connection. gorilla/websocket allows a
// single concurrent writer.
type Writer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWriter(conn *websocket.Conn) *Writer {
	return &Writer{conn: conn}
}

// WriteJSON sends data wrapped in an Envelope for event.
func (w *Writer) WriteJSON(event Event, data interface{}) error {
	return w.WriteTyped(Envelope{Event: event, Data: data})
}

// WriteTyped sends a strongly-typed payload over the WebSocket.
func (w *Writer) WriteTyped(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(v)
}

// WriteError sends an error event.
func (w *Writer) WriteError(code, msg string, fields map[string]string) error {
	return w.WriteJSON(EventError, ErrorResponse{Code: code, Message: msg, Fields: fields})
}

// ReadJSON reads and decodes a message into the provided structure.
// It sets a read deadline.
func ReadJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetReadDeadline(time.Now().Add(readWait))
	return conn.ReadJSON(v)
}
