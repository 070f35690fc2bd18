package stream

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"nhooyr.io/websocket"

	"dictate/record"
)

// Endpoint builds the websocket target URL from the configured base
// address. Scheme upgrade is mandatory; the record id and the session
// credential travel as query parameters.
func Endpoint(base string, kind record.Kind, recordID, credential string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidEndpoint, base, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("%w: scheme %q", ErrInvalidEndpoint, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidEndpoint, base)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + kind.Path

	q := u.Query()
	q.Set(kind.IDParam, recordID)
	q.Set("token", credential)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// conn is the framed transport under a session. One implementation per
// transport keeps the session logic testable against an in-process server.
type conn interface {
	SendBinary(data []byte) error
	SendText(data []byte) error
	Recv() ([]byte, error)
	Close() error
}

type wsConn struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

func dialWS(ctx context.Context, endpoint string) (conn, error) {
	connCtx, cancel := context.WithCancel(ctx)
	c, _, err := websocket.Dial(connCtx, endpoint, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	// Terminal result payloads can exceed the 32 KiB default.
	c.SetReadLimit(1 << 20)
	return &wsConn{conn: c, ctx: connCtx, cancel: cancel}, nil
}

func (w *wsConn) SendBinary(data []byte) error {
	return w.conn.Write(w.ctx, websocket.MessageBinary, data)
}

func (w *wsConn) SendText(data []byte) error {
	return w.conn.Write(w.ctx, websocket.MessageText, data)
}

func (w *wsConn) Recv() ([]byte, error) {
	_, data, err := w.conn.Read(w.ctx)
	return data, err
}

func (w *wsConn) Close() error {
	err := w.conn.Close(websocket.StatusNormalClosure, "")
	w.cancel()
	return err
}
