// Package client implements the websocket side of the scramble protocol:
// dial, one command in flight at a time, and a channel of pushed board
// snapshots while a watch subscription is active.
package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/decred/slog"
	"github.com/gorilla/websocket"
)

// ServerError is a command failure reported by the server.
type ServerError struct {
	Kind   string
	Detail string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server: %s: %s", e.Kind, e.Detail)
}

// Client is a connection to a scramble server for a single player. Do runs
// one command at a time; board snapshots pushed by the server while a watch
// is active arrive on Updates.
type Client struct {
	Player  string
	Updates chan string

	conn *websocket.Conn
	log  slog.Logger

	writeMu sync.Mutex
	replies chan string

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

// Dial connects to addr (host:port) as player and returns the client along
// with the initial board view the server sends on join.
func Dial(ctx context.Context, addr, player string, log slog.Logger) (*Client, string, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws",
		RawQuery: url.Values{"player": {player}}.Encode()}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("dial %s: %w", addr, err)
	}

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		Player:  player,
		Updates: make(chan string, 16),
		conn:    conn,
		log:     log,
		replies: make(chan string, 1),
		ctx:     cctx,
		cancel:  cancel,
	}
	go c.reader()

	view, err := c.await(ctx)
	if err != nil {
		c.Close()
		return nil, "", err
	}
	return c, view, nil
}

// reader routes incoming frames: watch pushes to Updates, everything else
// to the pending command.
func (c *Client) reader() {
	defer c.Close()
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.log.Debugf("read: %v", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		frame := string(data)
		if view, ok := strings.CutPrefix(frame, "push\n"); ok {
			c.pushUpdate(view)
			continue
		}
		select {
		case c.replies <- frame:
		case <-c.ctx.Done():
			return
		}
	}
}

// pushUpdate delivers a pushed snapshot without ever blocking the reader.
// If the consumer lags, the oldest pending snapshot is dropped; watch is
// level triggered, so a newer one is always at least as good.
func (c *Client) pushUpdate(view string) {
	for {
		select {
		case c.Updates <- view:
			return
		default:
		}
		select {
		case <-c.Updates:
		default:
		}
	}
}

// Do sends one command and returns its reply payload: the board string for
// board-shaped replies, the trailing text otherwise. Server-side failures
// come back as *ServerError.
func (c *Client) Do(ctx context.Context, cmd string) (string, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(cmd)); err != nil {
		return "", fmt.Errorf("send %q: %w", cmd, err)
	}
	return c.await(ctx)
}

// await reads the next command reply.
func (c *Client) await(ctx context.Context) (string, error) {
	select {
	case frame := <-c.replies:
		return parseReply(frame)
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.ctx.Done():
		return "", fmt.Errorf("connection closed")
	}
}

func parseReply(frame string) (string, error) {
	if payload, ok := strings.CutPrefix(frame, "ok\n"); ok {
		return payload, nil
	}
	if payload, ok := strings.CutPrefix(frame, "ok "); ok {
		return payload, nil
	}
	if frame == "ok" {
		return "", nil
	}
	if rest, ok := strings.CutPrefix(frame, "error "); ok {
		kind, detail, _ := strings.Cut(rest, ": ")
		return "", &ServerError{Kind: kind, Detail: detail}
	}
	return "", fmt.Errorf("malformed reply %q", frame)
}

// Look fetches the player's current view.
func (c *Client) Look(ctx context.Context) (string, error) {
	return c.Do(ctx, "look")
}

// Flip flips the card at row, col. It blocks while another player holds
// the card, like the board operation it wraps.
func (c *Client) Flip(ctx context.Context, row, col int) (string, error) {
	return c.Do(ctx, fmt.Sprintf("flip %d %d", row, col))
}

// Watch subscribes to pushed snapshots on Updates.
func (c *Client) Watch(ctx context.Context) error {
	_, err := c.Do(ctx, "watch")
	return err
}

// Unwatch ends the subscription.
func (c *Client) Unwatch(ctx context.Context) error {
	_, err := c.Do(ctx, "unwatch")
	return err
}

// Map applies the named server-side transform to every card value.
func (c *Client) Map(ctx context.Context, name string) (string, error) {
	return c.Do(ctx, "map "+name)
}

// Stats fetches the player's lifetime counters.
func (c *Client) Stats(ctx context.Context) (string, error) {
	return c.Do(ctx, "stats")
}

// Close tears the connection down. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.conn.Close()
	})
}
