package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

type wsSale struct {
	Product   string  `json:"product"`
	Quantity  int32   `json:"quantity"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

type wsCompletedDay struct {
	ID         int32 `json:"id"`
	EventCount int   `json:"event_count"`
}

type wsMessage struct {
	Type         string          `json:"type"`
	DayID        int32           `json:"day_id"`
	Sale         *wsSale         `json:"sale,omitempty"`
	CompletedDay *wsCompletedDay `json:"completed_day,omitempty"`
}

// hub fans live messages out to the connected websocket clients. A client
// that cannot keep up is dropped rather than ever blocking a broadcast.
type hub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*wsClient]struct{})}
}

func (h *hub) broadcastJSON(msg wsMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("api: marshal ws message: %v", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			close(c.send)
			delete(h.clients, c)
		}
	}
}

func (h *hub) add(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("api: websocket upgrade: %v", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, 256)}
	s.hub.add(c)

	go func() {
		defer conn.Close()
		for payload := range c.send {
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
		conn.WriteMessage(websocket.CloseMessage, []byte{})
	}()

	// Inbound messages are ignored; the read loop only detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.hub.remove(c)
}
