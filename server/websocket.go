package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/iti/ecmsim"
	"github.com/iti/ecmsim/internal/logging"
)

// Message types sent to clients
const (
	MsgProgress     = "PROGRESS"
	MsgRunDone      = "RUN_DONE"
	MsgReport       = "REPORT"
	MsgInitialState = "INITIAL_STATE"
)

// Message is the envelope of everything streamed to a client
type Message struct {
	Type     string           `json:"type"`
	Progress float64          `json:"progress"`
	Results  *ecmsim.Results  `json:"results,omitempty"`
	Topology *ecmsim.Topology `json:"topology,omitempty"`
	Report   *ecmsim.Report   `json:"report,omitempty"`
}

// ProgressHub streams run progress, per-run results and topology snapshots to the
// connected websocket clients. All writes to client connections happen on the
// goroutine executing Run.
type ProgressHub struct {
	log        logging.Logger
	clients    map[*websocket.Conn]bool
	broadcast  chan Message
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	requests   chan *websocket.Conn
	done       chan struct{}

	mu       sync.RWMutex
	progress float64
	topology *ecmsim.Topology
	report   *ecmsim.Report
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the UI is served from elsewhere
	},
}

// NewProgressHub creates a hub; call Run to start serving it
func NewProgressHub(log logging.Logger) *ProgressHub {
	if log == nil {
		log = logging.Noop()
	}
	return &ProgressHub{
		log:        log,
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Message, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		requests:   make(chan *websocket.Conn, 16),
		done:       make(chan struct{}),
	}
}

// Run handles client registration and broadcasting until ctx is done
func (hub *ProgressHub) Run(ctx context.Context) {
	defer close(hub.done)
	for {
		select {
		case <-ctx.Done():
			for client := range hub.clients {
				client.Close()
				delete(hub.clients, client)
			}
			return

		case client := <-hub.register:
			hub.clients[client] = true
			hub.log.Debug(ctx, "websocket client connected", logging.Int("clients", len(hub.clients)))
			hub.send(ctx, client, hub.initialState())

		case client := <-hub.unregister:
			if _, ok := hub.clients[client]; ok {
				delete(hub.clients, client)
				client.Close()
			}
			hub.log.Debug(ctx, "websocket client disconnected", logging.Int("clients", len(hub.clients)))

		case client := <-hub.requests:
			if hub.clients[client] {
				hub.send(ctx, client, hub.initialState())
			}

		case msg := <-hub.broadcast:
			for client := range hub.clients {
				hub.send(ctx, client, msg)
			}
		}
	}
}

// send writes one message, dropping the client on failure
func (hub *ProgressHub) send(ctx context.Context, client *websocket.Conn, msg Message) {
	if err := client.WriteJSON(msg); err != nil {
		hub.log.Warn(ctx, "websocket write failed", logging.Err(err))
		client.Close()
		delete(hub.clients, client)
	}
}

func (hub *ProgressHub) initialState() Message {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return Message{Type: MsgInitialState, Progress: hub.progress, Topology: hub.topology, Report: hub.report}
}

// PublishProgress records and broadcasts overall progress. Progress messages are
// dropped rather than block the simulation when clients fall behind.
func (hub *ProgressHub) PublishProgress(pct float64) {
	hub.mu.Lock()
	hub.progress = pct
	hub.mu.Unlock()
	select {
	case hub.broadcast <- Message{Type: MsgProgress, Progress: pct}:
	default:
	}
}

// PublishRun broadcasts the results and final topology of a completed run
func (hub *ProgressHub) PublishRun(res *ecmsim.Results, topo ecmsim.Topology) {
	hub.mu.Lock()
	if hub.topology == nil {
		hub.topology = &topo
	}
	progress := hub.progress
	hub.mu.Unlock()
	hub.deliver(Message{Type: MsgRunDone, Progress: progress, Results: res, Topology: &topo})
}

// PublishReport records and broadcasts the report of the whole experiment
func (hub *ProgressHub) PublishReport(rpt *ecmsim.Report) {
	hub.mu.Lock()
	hub.report = rpt
	hub.progress = 100.0
	if hub.topology == nil {
		hub.topology = rpt.Topology
	}
	topo := hub.topology
	hub.mu.Unlock()
	hub.deliver(Message{Type: MsgReport, Progress: 100.0, Report: rpt, Topology: topo})
}

// deliver queues a message for broadcast unless the hub has stopped
func (hub *ProgressHub) deliver(msg Message) {
	select {
	case hub.broadcast <- msg:
	case <-hub.done:
	}
}

// HandleWebSocket upgrades the request and registers the client
func (hub *ProgressHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Warn(r.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}
	select {
	case hub.register <- conn:
	case <-hub.done:
		conn.Close()
		return
	}
	go hub.readCommands(conn)
}

// readCommands serves client commands until the connection closes
func (hub *ProgressHub) readCommands(conn *websocket.Conn) {
	defer func() {
		select {
		case hub.unregister <- conn:
		case <-hub.done:
		}
	}()

	for {
		var cmd map[string]any
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				hub.log.Warn(context.Background(), "websocket read failed", logging.Err(err))
			}
			return
		}
		if cmdType, _ := cmd["type"].(string); cmdType == "REQUEST_STATE" {
			select {
			case hub.requests <- conn:
			case <-hub.done:
				return
			}
		}
	}
}

// Handler serves /ws and read-only JSON views of the latest state
func (hub *ProgressHub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWebSocket)
	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hub.initialState())
	})
	return mux
}
