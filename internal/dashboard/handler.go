package dashboard

import (
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/michaelomichael/tracka/internal/backend"
	"github.com/michaelomichael/tracka/internal/store"
	"github.com/michaelomichael/tracka/internal/types"
)

// Source is the part of a session the dashboard reads. *backend.Backend
// implements it.
type Source interface {
	Subscribe(collection types.Collection, fn store.Listener) (cancel func())
	SubscribeState(fn func(backend.State)) (cancel func())
	SubscribeWarnings(fn func([]types.Warning)) (cancel func())
	State() backend.State
	Warnings() []types.Warning
	Stats() store.Stats
	GetList(id string, mustExist bool) (*types.List, error)
	GetTask(id string, mustExist bool) (*types.Task, error)
	CreateBackupJSON() ([]byte, error)
}

var _ Source = (*backend.Backend)(nil)

// Action values carried by list_update and task_update messages.
const (
	ActionChanged = "changed"
	ActionRemoved = "removed"
	ActionReset   = "reset"
)

// ListUpdateData is the payload of a list_update message.
type ListUpdateData struct {
	ListID string      `json:"listId,omitempty"`
	Action string      `json:"action"`
	List   *types.List `json:"list,omitempty"`
}

// TaskUpdateData is the payload of a task_update message.
type TaskUpdateData struct {
	TaskID string      `json:"taskId,omitempty"`
	Action string      `json:"action"`
	Task   *types.Task `json:"task,omitempty"`
}

// StateData is the payload of a state message.
type StateData struct {
	State  backend.State `json:"state"`
	Loaded bool          `json:"loaded"`
}

// WarningsData is the payload of a warnings message.
type WarningsData struct {
	Warnings []types.Warning `json:"warnings"`
}

// Handler turns session events into dashboard messages.
type Handler struct {
	server *Server
	source Source
	logger *log.Logger
}

// NewHandler creates a handler that broadcasts through server. It also
// mounts /api/snapshot and sets the welcome messages, so it must be created
// before the server is started.
func NewHandler(server *Server, source Source, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}
	h := &Handler{server: server, source: source, logger: logger}
	server.Handle("/api/snapshot", http.HandlerFunc(h.handleSnapshot))
	server.SetWelcome(h.welcome)
	return h
}

// Attach subscribes to the source. The returned function detaches.
func (h *Handler) Attach() (detach func()) {
	cancels := []func(){
		h.source.Subscribe(types.CollectionLists, h.onListEvent),
		h.source.Subscribe(types.CollectionTasks, h.onTaskEvent),
		h.source.SubscribeState(h.onState),
		h.source.SubscribeWarnings(h.onWarnings),
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

func (h *Handler) onListEvent(ev store.Event) {
	data := ListUpdateData{ListID: ev.ID, Action: ActionChanged}
	switch {
	case ev.ID == "":
		data.Action = ActionReset
	case ev.Removed:
		data.Action = ActionRemoved
	default:
		list, err := h.source.GetList(ev.ID, true)
		if err != nil {
			// Still loading; the state message that follows tells clients
			// to fetch a snapshot.
			return
		}
		data.List = list
	}
	h.send(MessageTypeListUpdate, data)
	h.broadcastStats()
}

func (h *Handler) onTaskEvent(ev store.Event) {
	data := TaskUpdateData{TaskID: ev.ID, Action: ActionChanged}
	switch {
	case ev.ID == "":
		data.Action = ActionReset
	case ev.Removed:
		data.Action = ActionRemoved
	default:
		task, err := h.source.GetTask(ev.ID, true)
		if err != nil {
			return
		}
		data.Task = task
	}
	h.send(MessageTypeTaskUpdate, data)
	h.broadcastStats()
}

func (h *Handler) onState(s backend.State) {
	h.logger.Printf("Session state: %s", s)
	h.send(MessageTypeState, StateData{State: s, Loaded: s == backend.StateLoadingComplete})
	h.broadcastStats()
}

func (h *Handler) onWarnings(ws []types.Warning) {
	h.send(MessageTypeWarnings, WarningsData{Warnings: nonNil(ws)})
}

func (h *Handler) broadcastStats() {
	h.send(MessageTypeStats, h.source.Stats())
}

func (h *Handler) send(typ MessageType, data any) {
	msg, err := newMessage(typ, data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(msg)
}

// welcome is what a newly connected client reads first.
func (h *Handler) welcome() []Message {
	state := h.source.State()
	var out []Message
	for _, p := range []struct {
		typ  MessageType
		data any
	}{
		{MessageTypeState, StateData{State: state, Loaded: state == backend.StateLoadingComplete}},
		{MessageTypeStats, h.source.Stats()},
		{MessageTypeWarnings, WarningsData{Warnings: nonNil(h.source.Warnings())}},
	} {
		msg, err := newMessage(p.typ, p.data)
		if err != nil {
			h.logger.Printf("Failed to marshal %s data: %v", p.typ, err)
			continue
		}
		out = append(out, msg)
	}
	return out
}

// snapshotResponse is the body of /api/snapshot. Lists and tasks use the
// backup layout.
type snapshotResponse struct {
	State    backend.State   `json:"state"`
	Data     json.RawMessage `json:"data,omitempty"`
	Warnings []types.Warning `json:"warnings"`
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := snapshotResponse{
		State:    h.source.State(),
		Warnings: nonNil(h.source.Warnings()),
	}
	if resp.State == backend.StateLoadingComplete {
		data, err := h.source.CreateBackupJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		resp.Data = data
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Printf("Failed to write snapshot: %v", err)
	}
}

func newMessage(typ MessageType, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: typ, Data: raw}, nil
}

func nonNil(ws []types.Warning) []types.Warning {
	if ws == nil {
		return []types.Warning{}
	}
	return ws
}
