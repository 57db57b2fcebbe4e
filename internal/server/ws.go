package server

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// helloMessage is the first message on a hands feed.
type helloMessage struct {
	ID             string `json:"id"`
	MediaPipeReady bool   `json:"mediapipe_ready"`
}

// HandsHandler pushes the resolved hands of every processed frame to
// websocket clients as JSON.
type HandsHandler struct {
	pipeline Pipeline
}

// NewHandsHandler creates a new HandsHandler fed by the given pipeline.
func NewHandsHandler(p Pipeline) *HandsHandler {
	return &HandsHandler{pipeline: p}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *HandsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	summaries, unsubscribe := h.pipeline.Subscribe()
	defer unsubscribe()

	hello := helloMessage{ID: uuid.NewString(), MediaPipeReady: h.pipeline.Ready()}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(hello); err != nil {
		return
	}

	// Detect the client going away by reading until the connection fails.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case s, ok := <-summaries:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(s); err != nil {
				return
			}
		}
	}
}
