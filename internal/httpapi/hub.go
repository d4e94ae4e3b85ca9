package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/sharecell/cell/pkg/sheet"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 8
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Tokens, not origins, are the credential here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// update is the message broadcast to a sheet's subscribers after a modify.
type update struct {
	SheetID   string          `json:"sheetId"`
	Worksheet sheet.Worksheet `json:"worksheet"`
}

// Hub fans worksheet updates out to the websocket subscribers of each sheet.
// A single goroutine owns the rooms map; registration, unregistration and
// broadcasting all go through its channels.
type Hub struct {
	log *logrus.Logger

	rooms map[string]map[*client]bool

	register   chan *client
	unregister chan *client
	broadcast  chan update
	stop       chan struct{}
	done       chan struct{}
}

// NewHub returns a Hub; call Run to start its event loop.
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		log:        log,
		rooms:      make(map[string]map[*client]bool),
		register:   make(chan *client, 16),
		unregister: make(chan *client, 16),
		broadcast:  make(chan update, 64),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run processes hub events until Stop is called.
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			if h.rooms[c.sheetID] == nil {
				h.rooms[c.sheetID] = make(map[*client]bool)
			}
			h.rooms[c.sheetID][c] = true

		case c := <-h.unregister:
			if clients, ok := h.rooms[c.sheetID]; ok {
				if clients[c] {
					delete(clients, c)
					close(c.send)
					if len(clients) == 0 {
						delete(h.rooms, c.sheetID)
					}
				}
			}

		case u := <-h.broadcast:
			payload, err := json.Marshal(u)
			if err != nil {
				h.log.WithError(err).Error("encoding update")
				continue
			}
			for c := range h.rooms[u.SheetID] {
				select {
				case c.send <- payload:
				default:
					// Slow subscriber; drop it rather than block the hub.
					delete(h.rooms[u.SheetID], c)
					close(c.send)
				}
			}

		case <-h.stop:
			for _, clients := range h.rooms {
				for c := range clients {
					close(c.send)
				}
			}
			h.rooms = make(map[string]map[*client]bool)
			return
		}
	}
}

// Stop terminates the event loop and disconnects all subscribers.
func (h *Hub) Stop() {
	close(h.stop)
	<-h.done
}

// Broadcast queues a post-modify worksheet snapshot for sheetID's subscribers.
func (h *Hub) Broadcast(sheetID string, ws sheet.Worksheet) {
	select {
	case h.broadcast <- update{SheetID: sheetID, Worksheet: ws}:
	case <-h.stop:
	}
}

// handleLive upgrades the connection and subscribes it to one sheet's
// updates. Read access is required, same as for GET of the sheet itself.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")
	if !s.svc.Exists(sid) {
		writeError(w, http.StatusNotFound, "sheet not found")
		return
	}
	if !s.svc.CanRead(sid, r.URL.Query().Get("token")) {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	c := &client{
		hub:     s.hub,
		conn:    conn,
		sheetID: sid,
		send:    make(chan []byte, clientSendSize),
	}
	s.hub.register <- c

	go c.writePump()
	go c.readPump()
}
