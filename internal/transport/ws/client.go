package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"gridlayer.ai/internal/protocol"
)

// Handler receives every well-formed LAYER_DATA envelope. Its errors are
// logged; they never close the connection.
type Handler func(protocol.LayerDataMsg) error

type Client struct {
	conn    *websocket.Conn
	log     *log.Logger
	Welcome protocol.WelcomeMsg
}

// Dial connects, sends HELLO and waits for WELCOME.
func Dial(ctx context.Context, url, name string, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Default()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      name,
	}
	if err := writeJSON(conn, hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send HELLO: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read WELCOME: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	base, err := protocol.DecodeBase(msg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read WELCOME: %w", err)
	}
	switch base.Type {
	case protocol.TypeWelcome:
	case protocol.TypeError:
		var e protocol.ErrorMsg
		_ = json.Unmarshal(msg, &e)
		conn.Close()
		return nil, fmt.Errorf("handshake refused: %w", e)
	default:
		conn.Close()
		return nil, fmt.Errorf("%s: expected WELCOME, got %q", protocol.ErrProtoBadRequest, base.Type)
	}
	var w protocol.WelcomeMsg
	if err := json.Unmarshal(msg, &w); err != nil {
		conn.Close()
		return nil, fmt.Errorf("decode WELCOME: %w", err)
	}
	return &Client{conn: conn, log: logger, Welcome: w}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Run reads until the connection fails or ctx is done. Messages other than
// LAYER_DATA and malformed envelopes are logged and skipped.
func (c *Client) Run(ctx context.Context, fn Handler) error {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = c.conn.Close()
	})
	defer stop()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			c.log.Printf("level=warn kind=bad_envelope err=%v", err)
			continue
		}
		switch base.Type {
		case protocol.TypeLayerData:
		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err == nil {
				c.log.Printf("level=warn kind=server_error code=%s message=%q", e.Code, e.Message)
			}
			continue
		default:
			continue
		}
		m, err := protocol.DecodeLayerData(msg)
		if err != nil {
			c.log.Printf("level=warn kind=bad_envelope err=%v", err)
			continue
		}
		if err := fn(m); err != nil {
			c.log.Printf("level=warn kind=handler_failed sim=%s layer=%d seq=%d err=%v", m.SimID, m.Layer, m.Seq, err)
		}
	}
}

// DialFunc opens a fresh connection for RunForever.
type DialFunc func(ctx context.Context) (*Client, error)

// RunForever reconnects whenever the link drops, waiting on lim between
// attempts, until ctx is done.
func RunForever(ctx context.Context, dial DialFunc, fn Handler, lim *rate.Limiter, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}
	if lim == nil {
		lim = rate.NewLimiter(rate.Every(time.Second), 1)
	}
	for {
		if err := lim.Wait(ctx); err != nil {
			return ctx.Err()
		}
		c, err := dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Printf("level=warn kind=dial_failed err=%v", err)
			continue
		}
		logger.Printf("connected session=%s sims=%d", c.Welcome.SessionID, len(c.Welcome.Sims))
		err = c.Run(ctx, fn)
		_ = c.Close()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Printf("level=warn kind=disconnected err=%v", err)
	}
}
