package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/michaelomichael/tracka/internal/auth"
	"github.com/michaelomichael/tracka/internal/backend"
	"github.com/michaelomichael/tracka/internal/remote/memory"
)

var quiet = log.New(io.Discard, "", 0)

// setupSession returns a backend with user u1 fully loaded.
func setupSession(t *testing.T) *backend.Backend {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := auth.NewManual()
	b, err := backend.New(backend.Config{Remote: memory.New(), Auth: a, Logger: quiet})
	if err != nil {
		t.Fatalf("backend.New() failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	if err := b.Init(ctx); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	a.Login("u1")
	if err := b.WaitUntilLoaded(ctx); err != nil {
		t.Fatalf("WaitUntilLoaded() failed: %v", err)
	}
	return b
}

// setupServer starts a dashboard for b on a random port.
func setupServer(t *testing.T, b *backend.Backend, origins ...string) *Server {
	t.Helper()
	server := NewServer(&Config{Port: 0, AllowedOrigins: origins, Logger: quiet})
	h := NewHandler(server, b, quiet)
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	detach := h.Attach()
	t.Cleanup(func() {
		detach()
		server.Stop()
	})
	return server
}

func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Port: 0, Logger: quiet})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if addr := server.Addr(); addr == "" || addr == "127.0.0.1:0" {
		t.Fatalf("Addr() = %q, want a bound address", addr)
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWebSocket_WelcomeMessages(t *testing.T) {
	server := setupServer(t, setupSession(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, server)

	var types []MessageType
	for i := 0; i < 3; i++ {
		types = append(types, readMessage(t, ctx, conn).Type)
	}
	want := []MessageType{MessageTypeState, MessageTypeStats, MessageTypeWarnings}
	if !reflect.DeepEqual(types, want) {
		t.Errorf("welcome types = %v, want %v", types, want)
	}

	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want 1", server.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocket_BroadcastsTaskChanges(t *testing.T) {
	b := setupSession(t)
	server := setupServer(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, server)
	for i := 0; i < 3; i++ {
		readMessage(t, ctx, conn)
	}

	// Wait until the broadcast loop knows about this client.
	for server.ClientCount() != 1 {
		if ctx.Err() != nil {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	inbox, err := b.NewItemsList()
	if err != nil {
		t.Fatalf("NewItemsList() failed: %v", err)
	}
	task, err := b.AddTask(ctx, backend.NewTask{Title: "water plants", ListID: inbox.ID})
	if err != nil {
		t.Fatalf("AddTask() failed: %v", err)
	}

	for {
		msg := readMessage(t, ctx, conn)
		if msg.Type != MessageTypeTaskUpdate {
			continue
		}
		var data TaskUpdateData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			t.Fatalf("bad task_update data: %v", err)
		}
		if data.TaskID != task.ID {
			continue
		}
		if data.Action != ActionChanged || data.Task == nil || data.Task.Title != "water plants" {
			t.Errorf("task_update = %+v", data)
		}
		return
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	server := setupServer(t, setupSession(t))

	resp, err := http.Get("http://" + server.Addr() + "/api/snapshot")
	if err != nil {
		t.Fatalf("GET /api/snapshot failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		State backend.State `json:"state"`
		Data  struct {
			ListsByID map[string]json.RawMessage `json:"listsById"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.State != backend.StateLoadingComplete {
		t.Errorf("state = %s", body.State)
	}
	// Special lists are provisioned on login.
	if len(body.Data.ListsByID) != 3 {
		t.Errorf("got %d lists, want 3", len(body.Data.ListsByID))
	}
}

func TestHealth_CORS(t *testing.T) {
	server := setupServer(t, setupSession(t), "http://localhost:5173")

	tests := []struct {
		origin string
		want   string
	}{
		{"http://localhost:5173", "http://localhost:5173"},
		{"http://evil.example", ""},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(http.MethodGet, "http://"+server.Addr()+"/health", nil)
		req.Header.Set("Origin", tt.origin)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET /health failed: %v", err)
		}
		resp.Body.Close()
		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.want {
			t.Errorf("origin %s: Access-Control-Allow-Origin = %q, want %q", tt.origin, got, tt.want)
		}
	}
}

func TestOriginPatterns(t *testing.T) {
	tests := []struct {
		in   []string
		want []string
	}{
		{nil, []string{"*"}},
		{[]string{"http://localhost:5173", "https://app.example.com/"}, []string{"localhost:5173", "app.example.com"}},
	}
	for _, tt := range tests {
		if got := originPatterns(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("originPatterns(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
