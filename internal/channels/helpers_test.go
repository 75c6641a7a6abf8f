package channels

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/SteamVC/SteamVC_Talk/internal/broker"
	"github.com/SteamVC/SteamVC_Talk/internal/metrics"
	"github.com/SteamVC/SteamVC_Talk/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const waitFor = time.Second
const tick = 5 * time.Millisecond

// fakeConn はテスト用のWebSocket接続です
type fakeConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu  sync.Mutex
	out []map[string]any
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-c.in:
		return 1, b, nil
	case <-c.closed:
		return 0, nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = append(c.out, m)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) frames() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.out...)
}

// framesOfType は指定タイプの受信フレームだけを返します
func (c *fakeConn) framesOfType(typ string) []map[string]any {
	var res []map[string]any
	for _, f := range c.frames() {
		if f["type"] == typ {
			res = append(res, f)
		}
	}
	return res
}

func (c *fakeConn) send(t *testing.T, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	c.in <- b
}

type harness struct {
	broker  *broker.Broker
	metrics *metrics.Relay
}

func newHarness() *harness {
	return &harness{broker: broker.New(), metrics: metrics.New(prometheus.NewRegistry())}
}

// connect はセッションを開いて動かし、その接続を返します
func (h *harness) connect(t *testing.T, handler session.Handler, identity, peer string, topics []string) (*session.Session, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	s := session.New(conn, h.broker, handler, session.Params{Identity: identity, Peer: peer, Topics: topics}, session.Options{Metrics: h.metrics})
	s.Open()

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(finished)
	}()
	t.Cleanup(func() {
		cancel()
		<-finished
	})
	return s, conn
}
