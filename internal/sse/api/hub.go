package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/keys"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub maintains one websocket connection per search session and routes
// postings to the specific connection that requested them: only the
// client that issued the search may see its postings, so routing here
// is point-to-point by session id rather than a broadcast fan-out.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*websocket.Conn
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[string]*websocket.Conn)}
}

// Subscribe upgrades the request to a websocket and registers it under a
// session id: the caller's own (?session=...) if given, otherwise a fresh
// one minted and sent back as the first frame so the client can attach it
// to its search request.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Hub] failed to upgrade websocket: %v", err)
		return
	}

	session := c.Query("session")
	if session == "" {
		session = keys.NewSessionID()
	}

	h.mu.Lock()
	h.sessions[session] = conn
	h.mu.Unlock()

	if err := conn.WriteJSON(map[string]string{"session": session}); err != nil {
		log.Printf("[Hub] failed to send session id: %v", err)
	}

	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.sessions, session)
			h.mu.Unlock()
			conn.Close()
			log.Printf("[Hub] session %s disconnected", session)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[Hub] session %s websocket error: %v", session, err)
				}
				break
			}
		}
	}()
}

// SendPosting pushes one recovered posting to session's connection, if
// still attached. Returns false if no such session is connected or the
// write fails; the posting is then not delivered.
func (h *Hub) SendPosting(session string, ix uint64) bool {
	h.mu.Lock()
	conn, ok := h.sessions[session]
	h.mu.Unlock()
	if !ok {
		return false
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(map[string]uint64{"result": ix}); err != nil {
		log.Printf("[Hub] session %s write failed: %v", session, err)
		return false
	}
	return true
}

// SendDone signals a session that its search reply stream is complete,
// carrying the count of postings the server could not recover.
func (h *Hub) SendDone(session string, missing int) {
	h.mu.Lock()
	conn, ok := h.sessions[session]
	h.mu.Unlock()
	if !ok {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = conn.WriteJSON(map[string]any{"done": true, "missing_count": missing})
}
