// Package livereload tells connected browsers to reload after a successful
// rebuild.
package livereload

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait     = 10 * time.Second
	sendBuffer    = 16
	shutdownGrace = 2 * time.Second
)

// Message is the JSON payload sent to browsers.
type Message struct {
	Type    string `json:"type"`
	BuildID string `json:"build_id,omitempty"`
}

const (
	TypeHello  = "hello"
	TypeReload = "reload"
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans reload messages out to websocket clients. Run must be running for
// clients to be served.
type Hub struct {
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}
	runOnce    sync.Once
	clients    atomic.Int32

	mu     sync.RWMutex
	lastID string
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger.With("component", "livereload"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
	}
}

// Broadcast tells every connected browser that buildID is live. It never
// blocks; if the hub is backed up the message is dropped.
func (h *Hub) Broadcast(buildID string) {
	h.mu.Lock()
	h.lastID = buildID
	h.mu.Unlock()

	msg, err := json.Marshal(Message{Type: TypeReload, BuildID: buildID})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("reload dropped, hub is busy", "build_id", buildID)
	}
}

// Resume records buildID as the live build without notifying browsers, for
// a build that predates this hub.
func (h *Hub) Resume(buildID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastID = buildID
}

// LastBuildID returns the most recently broadcast build ID.
func (h *Hub) LastBuildID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastID
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int { return int(h.clients.Load()) }

// Run owns the client set until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	clients := make(map[*client]struct{})
	defer func() {
		h.runOnce.Do(func() { close(h.done) })
		for c := range clients {
			close(c.send)
		}
		h.clients.Store(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			clients[c] = struct{}{}
			h.clients.Store(int32(len(clients)))
			h.logger.Debug("browser connected", "clients", len(clients))
			if hello, err := json.Marshal(Message{Type: TypeHello, BuildID: h.LastBuildID()}); err == nil {
				c.send <- hello
			}

		case c := <-h.unregister:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				close(c.send)
				h.clients.Store(int32(len(clients)))
				h.logger.Debug("browser disconnected", "clients", len(clients))
			}

		case msg := <-h.broadcast:
			for c := range clients {
				select {
				case c.send <- msg:
				default:
					// Slow client; drop it rather than stall every other browser.
					close(c.send)
					delete(clients, c)
				}
			}
			h.clients.Store(int32(len(clients)))
		}
	}
}

// Handler serves the reload endpoints:
//
//	GET  /ws             websocket stream of Messages
//	POST /reload         broadcast a reload for the last build
//	GET  /build_id       last build ID as plain text
//	GET  /livereload.js  client script that reloads the page on each message
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWebSocket)
	mux.HandleFunc("/reload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.Broadcast(h.LastBuildID())
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/build_id", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write([]byte(h.LastBuildID()))
	})
	mux.HandleFunc("/livereload.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		_, _ = w.Write([]byte(clientScript))
	})
	return mux
}

// Serve runs the hub and an HTTP server on addr until ctx is done.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return h.serve(ctx, ln)
}

func (h *Hub) serve(ctx context.Context, ln net.Listener) error {
	go h.Run(ctx)

	srv := &http.Server{
		Handler:           h.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	h.logger.Info("live reload listening", "addr", ln.Addr().String())
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	// Writer
	go func() {
		defer conn.Close()
		for msg := range c.send {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
	}()

	// Reader (detects disconnect)
	go func() {
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()
}
