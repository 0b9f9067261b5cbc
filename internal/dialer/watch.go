package dialer

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dense-identity/confdialer/internal/callstore"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const watchWriteTimeout = 5 * time.Second

// WatchHandler streams call updates over a websocket. With ?call=<id> it
// sends the current record, then every change until the call ends; without
// it every call's updates are streamed.
type WatchHandler struct {
	engine   *Engine
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewWatchHandler(engine *Engine, logger *zap.Logger) *WatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WatchHandler{
		engine:   engine,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		log:      logger.Named("watch"),
	}
}

func (h *WatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	callID := strings.TrimSpace(r.URL.Query().Get("call"))

	// Subscribe before reading the snapshot so no update falls in between.
	updates, unsubscribe := h.engine.Events().Subscribe(callID, 32)
	defer unsubscribe()

	var snapshot *callstore.CallRecord
	if callID != "" {
		rec, err := h.engine.GetCall(r.Context(), callID)
		if errors.Is(err, callstore.ErrNotFound) {
			http.Error(w, "call not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		snapshot = rec
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Reads only serve to notice the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if snapshot != nil {
		if err := h.send(conn, snapshot); err != nil || snapshot.Status.IsTerminal() {
			h.close(conn)
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-updates:
			if !ok {
				return
			}
			if err := h.send(conn, rec); err != nil {
				h.log.Debug("Watcher went away", zap.Error(err))
				return
			}
			if callID != "" && rec.Status.IsTerminal() {
				h.close(conn)
				return
			}
		}
	}
}

func (h *WatchHandler) send(conn *websocket.Conn, rec *callstore.CallRecord) error {
	_ = conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
	return conn.WriteJSON(CallToPB(rec))
}

func (h *WatchHandler) close(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call ended")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
