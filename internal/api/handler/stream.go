package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kiranshivaraju/enrichq/internal/alert"
)

const writeWait = 10 * time.Second

// AlertStreamer opens a live alert session.
type AlertStreamer interface {
	Start(ctx context.Context, observer alert.Observer) (*alert.Session, error)
}

// NewAlertStreamHandler returns an http.HandlerFunc for
// GET /api/v1/alerts/stream. Each WebSocket connection is one dispatch
// session; routed notices are written as JSON text frames. Browser upgrades
// must come from one of allowedOrigins; an empty list or "*" admits any.
func NewAlertStreamHandler(streamer AlertStreamer, allowedOrigins ...string) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	log := slog.With("component", "api.alert_stream")

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error.
			log.Warn("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		var mu sync.Mutex
		write := func(v any) error {
			mu.Lock()
			defer mu.Unlock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			return conn.WriteJSON(v)
		}

		sess, err := streamer.Start(ctx, func(n alert.Notice) {
			if err := write(n); err != nil {
				log.Warn("writing alert notice", "error", err)
				cancel()
			}
		})
		if err != nil {
			log.Error("opening alert session", "error", err)
			mu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "alert stream unavailable"),
				time.Now().Add(writeWait))
			mu.Unlock()
			return
		}
		defer sess.Close()

		log.Info("alert stream client connected", "remote_addr", r.RemoteAddr)

		// The session ending (source failure, shutdown) closes the socket,
		// which unblocks the read loop below.
		go func() {
			select {
			case <-sess.Done():
			case <-ctx.Done():
			}
			_ = conn.Close()
		}()

		// Inbound frames are ignored; reading only detects disconnects.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		log.Info("alert stream client disconnected", "remote_addr", r.RemoteAddr)
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}
