package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/app"
	"chatrelay/internal/config"
)

const readTimeout = 3 * time.Second

// startRelay runs a full application on a loopback port backed by a
// temporary database.
func startRelay(t *testing.T, mutate func(*config.Config)) *app.Application {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = freePort(t)
	cfg.Database.Path = filepath.Join(t.TempDir(), "relay.db")
	cfg.Database.RetryDelay = 10 * time.Millisecond
	if mutate != nil {
		mutate(cfg)
	}

	application, err := app.NewApplication(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, application.Start(context.Background()))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := application.Stop(ctx); err != nil {
			t.Logf("stop: %v", err)
		}
	})
	return application
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func getJSON(t *testing.T, application *app.Application, path string, out any) int {
	t.Helper()
	resp, err := http.Get("http://" + application.Addr() + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

type frame struct {
	Event string          `json:"event"`
	Ack   *int64          `json:"ack"`
	Error string          `json:"error"`
	Data  json.RawMessage `json:"data"`
}

type chatLine struct {
	Username  string `json:"username"`
	Text      string `json:"text"`
	URL       string `json:"url"`
	CreatedAt int64  `json:"createdAt"`
}

func (f frame) line(t *testing.T) chatLine {
	t.Helper()
	var l chatLine
	require.NoError(t, json.Unmarshal(f.Data, &l))
	return l
}

func (f frame) isText(text string) bool {
	if f.Event != "message" {
		return false
	}
	var l chatLine
	return json.Unmarshal(f.Data, &l) == nil && l.Text == text
}

// client is a test participant speaking the wire protocol. Frames read
// while waiting for an ack stay pending so waitFor still sees them.
type client struct {
	t       *testing.T
	conn    *websocket.Conn
	ack     int64
	pending []frame
}

func dial(t *testing.T, application *app.Application) *client {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+application.Addr()+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) readSocket() frame {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(readTimeout)))
	var f frame
	require.NoError(c.t, c.conn.ReadJSON(&f))
	return f
}

// next returns the oldest pending frame, or reads a new one.
func (c *client) next() frame {
	c.t.Helper()
	if len(c.pending) > 0 {
		f := c.pending[0]
		c.pending = c.pending[1:]
		return f
	}
	return c.readSocket()
}

// request sends event and returns the frames that arrived before its ack,
// and the ack itself. Those frames are also left pending.
func (c *client) request(event string, data any) ([]frame, frame) {
	c.t.Helper()
	c.ack++
	id := c.ack

	raw, err := json.Marshal(data)
	require.NoError(c.t, err)
	msg := fmt.Sprintf(`{"event":%q,"ack":%d,"data":%s}`, event, id, raw)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(msg)))

	var before []frame
	for {
		f := c.readSocket()
		if f.Event == "ack" && f.Ack != nil && *f.Ack == id {
			return before, f
		}
		before = append(before, f)
		c.pending = append(c.pending, f)
	}
}

func (c *client) join(username, room string) []frame {
	c.t.Helper()
	before, ack := c.request("join", map[string]string{"username": username, "room": room})
	require.Empty(c.t, ack.Error, "join %s/%s", username, room)
	return before
}

// waitFor consumes frames, pending ones first, until match accepts one. It
// returns the frames skipped on the way and the match.
func (c *client) waitFor(match func(frame) bool) ([]frame, frame) {
	c.t.Helper()
	var skipped []frame
	for {
		f := c.next()
		if match(f) {
			return skipped, f
		}
		skipped = append(skipped, f)
	}
}

// sync sends a marker message and consumes everything up to its echo,
// returning what arrived in between.
func (c *client) sync(marker string) []frame {
	c.t.Helper()
	_, ack := c.request("sendMessage", marker)
	require.Empty(c.t, ack.Error)
	skipped, _ := c.waitFor(func(f frame) bool { return f.isText(marker) })
	return skipped
}

func countText(frames []frame, text string) int {
	n := 0
	for _, f := range frames {
		if f.isText(text) {
			n++
		}
	}
	return n
}
