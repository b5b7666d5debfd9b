package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mhollis/skiff/internal/models"
	"github.com/mhollis/skiff/internal/queue"
)

const (
	// flushInterval is the minimum gap between snapshot pushes while
	// progress events stream in.
	flushInterval = 250 * time.Millisecond

	writeWait = 5 * time.Second
)

// transfersMessage is the frame pushed to websocket subscribers.
type transfersMessage struct {
	Type  string                `json:"type"`
	Items []models.TransferItem `json:"items"`
}

// Broadcaster fans queue events out to websocket subscribers. Progress
// updates are coalesced behind a minimum flush interval; state
// transitions flush immediately.
type Broadcaster struct {
	q        *queue.Queue
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu    sync.Mutex
	conns map[*subscriber]struct{}
}

// subscriber serializes writes to one websocket connection.
type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewBroadcaster creates a broadcaster over a queue's event stream.
func NewBroadcaster(q *queue.Queue, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		q: q,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The server binds to loopback; browsers on other origins
			// never reach it.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "ws").Logger(),
		conns:  make(map[*subscriber]struct{}),
	}
}

// Subscribe upgrades the request and streams transfer snapshots until
// the peer disconnects.
func (b *Broadcaster) Subscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sub := &subscriber{conn: conn}
	b.mu.Lock()
	b.conns[sub] = struct{}{}
	b.mu.Unlock()

	// Initial snapshot so the subscriber starts in sync.
	b.send(sub, b.q.Snapshot())

	// Drain reads to observe the close handshake.
	go func() {
		defer b.drop(sub)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Run consumes queue events until ctx ends.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	dirty := false
	lastFlush := time.Time{}

	flush := func() {
		dirty = false
		lastFlush = time.Now()
		b.broadcast(b.q.Snapshot())
	}

	for {
		select {
		case <-ctx.Done():
			b.closeAll()
			return

		case ev := <-b.q.Events():
			switch ev.Type {
			case queue.EventProgress:
				if time.Since(lastFlush) >= flushInterval {
					flush()
				} else {
					dirty = true
				}
			default:
				// Queue/start/finish transitions bypass the debounce.
				flush()
			}

		case <-ticker.C:
			if dirty {
				flush()
			}
		}
	}
}

func (b *Broadcaster) broadcast(items []models.TransferItem) {
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.conns))
	for s := range b.conns {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		b.send(s, items)
	}
}

func (b *Broadcaster) send(sub *subscriber, items []models.TransferItem) {
	sub.mu.Lock()
	sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := sub.conn.WriteJSON(transfersMessage{Type: "transfers", Items: items})
	sub.mu.Unlock()

	if err != nil {
		b.drop(sub)
	}
}

func (b *Broadcaster) drop(sub *subscriber) {
	b.mu.Lock()
	_, present := b.conns[sub]
	delete(b.conns, sub)
	b.mu.Unlock()

	if present {
		sub.conn.Close()
	}
}

func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.conns))
	for s := range b.conns {
		subs = append(subs, s)
	}
	b.conns = make(map[*subscriber]struct{})
	b.mu.Unlock()

	for _, s := range subs {
		s.mu.Lock()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
		s.mu.Unlock()
		s.conn.Close()
	}
}
