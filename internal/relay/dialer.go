package relay

import (
	"context"
	"io"
	"net"
	"sync"

	"market-dashboard/internal/stream"
)

// Dialer connects stream controllers straight to the hub, skipping the
// websocket hop for views served by the same process.
type Dialer struct {
	Hub *Hub
}

// Dial implements stream.Dialer.
func (d Dialer) Dial(ctx context.Context, ticker string) (stream.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	frames, unsub := d.Hub.Subscribe(ticker)
	return &hubConn{frames: frames, unsub: unsub, closed: make(chan struct{})}, nil
}

type hubConn struct {
	frames <-chan []byte
	unsub  func()
	once   sync.Once
	closed chan struct{}
}

func (c *hubConn) ReadMessage() ([]byte, error) {
	select {
	case <-c.closed:
		return nil, net.ErrClosed
	case b, ok := <-c.frames:
		if !ok {
			return nil, io.EOF
		}
		return b, nil
	}
}

func (c *hubConn) Close() error {
	c.once.Do(func() {
		close(c.closed)
		c.unsub()
	})
	return nil
}
