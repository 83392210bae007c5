package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// conn is a DevTools protocol client for one page target.
type conn struct {
	url    string
	ws     *websocket.Conn
	nextID int64
	logger *slog.Logger
}

type request struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// message is either a response (ID set) or an event (Method set).
type message struct {
	ID     int64           `json:"id"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("devtools error %d: %s", e.Code, e.Message)
}

func dial(ctx context.Context, wsURL string, logger *slog.Logger) (*conn, error) {
	logger.Debug("Connecting to DevTools", slog.String("url", wsURL))

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	ws, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	logger.Info("DevTools connected", slog.String("url", wsURL))
	return &conn{url: wsURL, ws: ws, logger: logger}, nil
}

// call sends one command and waits for its response, skipping events.
// Any error leaves the connection unusable; the caller must redial.
func (c *conn) call(ctx context.Context, method string, params, result any) error {
	c.nextID++
	id := c.nextID

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	c.ws.SetWriteDeadline(deadline)
	c.ws.SetReadDeadline(deadline)

	// Unblock reads when ctx is cancelled without a deadline.
	stop := context.AfterFunc(ctx, func() {
		c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := c.ws.WriteJSON(request{ID: id, Method: method, Params: params}); err != nil {
		return c.ioError(ctx, "write", err)
	}

	for {
		var msg message
		if err := c.ws.ReadJSON(&msg); err != nil {
			return c.ioError(ctx, "read", err)
		}
		if msg.ID != id {
			continue
		}
		if msg.Error != nil {
			return msg.Error
		}
		if result == nil {
			return nil
		}
		if err := json.Unmarshal(msg.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	}
}

func (c *conn) ioError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s devtools message: %w", op, context.DeadlineExceeded)
	}
	return fmt.Errorf("failed to %s devtools message: %w", op, err)
}

func (c *conn) close() error {
	if c.ws == nil {
		return nil
	}
	c.logger.Debug("Closing DevTools connection")
	c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := c.ws.Close()
	c.ws = nil
	return err
}
