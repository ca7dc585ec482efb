package view

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

var errSlowBrowser = errors.New("view: browser not keeping up")

// Serve runs a view over conn until the browser goes away or ctx ends.
func Serve(ctx context.Context, conn *websocket.Conn, opts Options) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make(chan Message, 128)
	commands := make(chan Command, 8)

	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-out:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(m); err != nil {
					log.Printf("view: write: %v", err)
					return
				}
			}
		}
	}()

	go func() {
		defer close(commands)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("view: read: %v", err)
				}
				return
			}
			var cmd Command
			if err := json.Unmarshal(raw, &cmd); err != nil {
				select {
				case out <- Message{Op: OpError, Message: "malformed command: " + err.Error()}:
				default:
				}
				continue
			}
			select {
			case commands <- cmd:
			case <-ctx.Done():
				return
			}
		}
	}()

	send := func(m Message) error {
		select {
		case out <- m:
			return nil
		default:
			return errSlowBrowser
		}
	}
	v := New(opts, send)
	log.Printf("view %s: opened", v.ID[:8])
	v.Run(ctx, commands)
	log.Printf("view %s: closed", v.ID[:8])
}
