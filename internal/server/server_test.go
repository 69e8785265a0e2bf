package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpalmerr/tadowatch/internal/quota"
	"github.com/jpalmerr/tadowatch/internal/store"
	"github.com/jpalmerr/tadowatch/tado"
)

// testLogger discards log output so test runs stay quiet.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockStore is a minimal store.Store for handler tests.
type mockStore struct {
	mu          sync.RWMutex
	latest      store.Snapshot
	hasLatest   bool
	subscribers map[chan store.Snapshot]struct{}
	subMu       sync.Mutex
}

func newMockStore() *mockStore {
	return &mockStore{
		subscribers: make(map[chan store.Snapshot]struct{}),
	}
}

func (m *mockStore) Update(snap store.Snapshot) {
	m.mu.Lock()
	m.latest = snap
	m.hasLatest = true
	m.mu.Unlock()

	m.subMu.Lock()
	for ch := range m.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
	m.subMu.Unlock()
}

func (m *mockStore) Latest() (store.Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, m.hasLatest
}

func (m *mockStore) Subscribe() <-chan store.Snapshot {
	ch := make(chan store.Snapshot, 16)
	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()
	return ch
}

func (m *mockStore) Unsubscribe(ch <-chan store.Snapshot) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// staticUsage returns a usage callback with fixed values.
func staticUsage(calls int) func() quota.Usage {
	return func() quota.Usage {
		return quota.Usage{CallsToday: calls, Limit: 100, Remaining: 100 - calls, Tier: quota.TierFree}
	}
}

// snapshotWithRoom builds a snapshot carrying one named room.
func snapshotWithRoom(name string) store.Snapshot {
	return store.Snapshot{
		Rooms:     []tado.Room{{ID: 1, Name: name}},
		UpdatedAt: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
		Usage:     quota.Usage{CallsToday: 3, Limit: 100},
	}
}

// --- Tests ---

func TestHandleState_NoSnapshot(t *testing.T) {
	ms := newMockStore()
	srv := NewServer(ms, staticUsage(0), 0, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	rec := httptest.NewRecorder()

	srv.handleState(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d before the first cycle", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleState_ReturnsLatest(t *testing.T) {
	ms := newMockStore()
	ms.Update(snapshotWithRoom("Living Room"))

	srv := NewServer(ms, staticUsage(3), 0, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	rec := httptest.NewRecorder()

	srv.handleState(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var snap store.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if len(snap.Rooms) != 1 || snap.Rooms[0].Name != "Living Room" {
		t.Errorf("Rooms = %+v, want one room named Living Room", snap.Rooms)
	}
	if snap.Usage.CallsToday != 3 {
		t.Errorf("Usage.CallsToday = %d, want 3", snap.Usage.CallsToday)
	}
}

func TestHandleState_MethodNotAllowed(t *testing.T) {
	ms := newMockStore()
	srv := NewServer(ms, staticUsage(0), 0, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/state", nil)
	rec := httptest.NewRecorder()

	srv.handleState(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleUsage_LiveValues(t *testing.T) {
	ms := newMockStore()

	// the callback counts invocations so we can prove the endpoint reads
	// live values rather than the stored snapshot
	var calls atomic.Int32
	usage := func() quota.Usage {
		return quota.Usage{CallsToday: int(calls.Add(1)), Limit: 100}
	}

	srv := NewServer(ms, usage, 0, testLogger())

	for want := 1; want <= 2; want++ {
		req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
		rec := httptest.NewRecorder()

		srv.handleUsage(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		var got quota.Usage
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("failed to parse JSON: %v", err)
		}
		if got.CallsToday != want {
			t.Errorf("CallsToday = %d, want %d", got.CallsToday, want)
		}
	}
}

func TestHandleHealthz(t *testing.T) {
	ms := newMockStore()
	srv := NewServer(ms, staticUsage(0), 0, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	srv.handleHealthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("body = %q, want ok", rec.Body.String())
	}
}

func TestHandleSSE_SendsLatestFirst(t *testing.T) {
	ms := newMockStore()
	ms.Update(snapshotWithRoom("Kitchen"))

	srv := NewServer(ms, staticUsage(0), 0, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
	rec := httptest.NewRecorder()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	srv.handleSSE(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "Kitchen") {
		t.Errorf("response should contain the latest snapshot, got: %s", body)
	}
}

func TestHandleSSE_StreamsUpdates(t *testing.T) {
	ms := newMockStore()
	srv := NewServer(ms, staticUsage(0), 0, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
	rec := httptest.NewRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	req = req.WithContext(ctx)

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	// let the handler subscribe, publish, let it write, then stop it
	time.Sleep(50 * time.Millisecond)
	ms.Update(snapshotWithRoom("Bedroom"))
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("handleSSE kept running after its context ended")
	}

	body := rec.Body.String()
	if !strings.Contains(body, "Bedroom") {
		t.Errorf("response should contain streamed update, got: %s", body)
	}
}

func TestHandleSSE_ClientDisconnect(t *testing.T) {
	ms := newMockStore()
	srv := NewServer(ms, staticUsage(0), 0, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
	rec := httptest.NewRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	req = req.WithContext(ctx)

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	// cancelling the request context stands in for the client going away
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("handleSSE kept running after the client went away")
	}
}

func TestHandleSSE_ServerShutdown(t *testing.T) {
	ms := newMockStore()
	srv := NewServer(ms, staticUsage(0), 0, testLogger())

	serverCtx, serverCancel := context.WithCancel(context.Background())

	// calling handleSSE directly skips http.Server, so wire the request
	// context to the server context by hand the way BaseContext would
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
	req = req.WithContext(serverCtx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	// once the handler is parked on its channels, shut the server down
	time.Sleep(50 * time.Millisecond)
	serverCancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handleSSE kept running after shutdown")
	}
}

func TestHandleSSE_NoGoroutineLeaks(t *testing.T) {
	// settle first so the baseline count is stable
	runtime.GC()
	time.Sleep(100 * time.Millisecond)
	before := runtime.NumGoroutine()

	ms := newMockStore()
	srv := NewServer(ms, staticUsage(0), 0, testLogger())

	// open several SSE streams that each time out on their own
	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
			req = req.WithContext(ctx)
			rec := httptest.NewRecorder()

			srv.handleSSE(rec, req)
		}()
	}

	wg.Wait()

	runtime.GC()
	time.Sleep(200 * time.Millisecond)

	after := runtime.NumGoroutine()
	if after > before+2 { // tolerance for runtime-owned goroutines
		t.Errorf("goroutine count grew from %d to %d", before, after)
	}
}

func TestHandleSSE_SSENotSupported(t *testing.T) {
	ms := newMockStore()
	srv := NewServer(ms, staticUsage(0), 0, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)

	// bareWriter has no Flush, so the handler must refuse the stream
	w := &bareWriter{header: make(http.Header)}

	srv.handleSSE(w, req)

	if w.statusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.statusCode, http.StatusInternalServerError)
	}
}

// bareWriter is a ResponseWriter without http.Flusher.
type bareWriter struct {
	header     http.Header
	statusCode int
	body       []byte
}

func (b *bareWriter) Header() http.Header { return b.header }

func (b *bareWriter) Write(p []byte) (int, error) {
	b.body = append(b.body, p...)
	return len(p), nil
}

func (b *bareWriter) WriteHeader(statusCode int) { b.statusCode = statusCode }

func TestHandleSSE_Headers(t *testing.T) {
	ms := newMockStore()
	srv := NewServer(ms, staticUsage(0), 0, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	want := map[string]string{
		"Content-Type":                "text/event-stream",
		"Cache-Control":               "no-cache",
		"Connection":                  "keep-alive",
		"Access-Control-Allow-Origin": "*",
	}

	for key, value := range want {
		if got := rec.Header().Get(key); got != value {
			t.Errorf("header %s = %q, want %q", key, got, value)
		}
	}
}

func TestHandleSSE_JSONFormat(t *testing.T) {
	ms := newMockStore()
	ms.Update(snapshotWithRoom("Study"))

	srv := NewServer(ms, staticUsage(0), 0, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	body := rec.Body.String()

	// events arrive as "data: {...}\n\n"; pull the payload off the first one
	var jsonData string
	for _, line := range strings.Split(body, "\n") {
		if payload, ok := strings.CutPrefix(line, "data: "); ok {
			jsonData = payload
			break
		}
	}

	if jsonData == "" {
		t.Fatalf("response carried no data frame: %s", body)
	}

	var snap store.Snapshot
	if err := json.Unmarshal([]byte(jsonData), &snap); err != nil {
		t.Fatalf("payload is not valid JSON: %v (%s)", err, jsonData)
	}

	if len(snap.Rooms) != 1 || snap.Rooms[0].Name != "Study" {
		t.Errorf("Rooms = %+v, want one room named Study", snap.Rooms)
	}
	if snap.Usage.CallsToday != 3 {
		t.Errorf("Usage.CallsToday = %d, want 3", snap.Usage.CallsToday)
	}
}

// Deadline behavior needs a real TCP connection: httptest recorders have no
// SetWriteDeadline, so shutdown under load is verified with httptest.Server.

// TestHandleSSE_ServerShutdownIntegration proves a live SSE connection is
// torn down when the server context is cancelled.
func TestHandleSSE_ServerShutdownIntegration(t *testing.T) {
	ms := newMockStore()
	ms.Update(snapshotWithRoom("Hall"))

	srv := NewServer(ms, staticUsage(0), 0, testLogger())

	serverCtx, serverCancel := context.WithCancel(context.Background())

	// stand-in for BaseContext: every request runs under serverCtx
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.handleSSE(w, r.WithContext(serverCtx))
	})

	ts := httptest.NewServer(handler)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	// drain the stream until the server ends it
	connDone := make(chan error, 1)
	go func() {
		resp, err := ts.Client().Do(req)
		if err != nil {
			connDone <- err
			return
		}
		defer func() { _ = resp.Body.Close() }()

		_, _ = io.Copy(io.Discard, resp.Body)
		connDone <- nil
	}()

	// let the stream establish, then pull the plug
	time.Sleep(100 * time.Millisecond)
	serverCancel()

	select {
	case <-connDone:
	case <-time.After(3 * time.Second):
		t.Fatal("the stream stayed open past server shutdown")
	}
}

// --- Server Start Tests ---

func TestStart_AvailablePort_ReturnsNil(t *testing.T) {
	ms := newMockStore()
	// port 0 lets the OS pick; the public watcher API insists on port > 0
	// but this package accepts it
	srv := NewServer(ms, staticUsage(0), 0, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Errorf("Start() failed on a free port: %v", err)
	}
}

func TestStart_PortInUse_ReturnsError(t *testing.T) {
	// hold a port open, then ask the server for the same one
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer func() { _ = ln.Close() }()

	port := ln.Addr().(*net.TCPAddr).Port

	ms := newMockStore()
	srv := NewServer(ms, staticUsage(0), port, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = srv.Start(ctx)
	if err == nil {
		t.Fatal("Start() accepted a port already in use")
	}
	// make sure the failure came from the bind, not something later
	if !strings.Contains(err.Error(), "failed to bind") {
		t.Errorf("error = %v, want a bind failure", err)
	}
}

func TestStart_InvalidPort_ReturnsError(t *testing.T) {
	ms := newMockStore()
	srv := NewServer(ms, staticUsage(0), -1, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err == nil {
		t.Fatal("Start() accepted a negative port")
	}
}

func TestStart_RoutesServeJSON(t *testing.T) {
	ms := newMockStore()
	ms.Update(snapshotWithRoom("Attic"))

	srv := NewServer(ms, staticUsage(7), 0, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	base := "http://" + srv.Addr()

	resp, err := http.Get(base + "/api/usage")
	if err != nil {
		t.Fatalf("GET /api/usage error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var usage quota.Usage
	if err := json.NewDecoder(resp.Body).Decode(&usage); err != nil {
		t.Fatalf("failed to decode usage: %v", err)
	}
	if usage.CallsToday != 7 {
		t.Errorf("CallsToday = %d, want 7", usage.CallsToday)
	}

	resp, err = http.Get(base + "/api/state")
	if err != nil {
		t.Fatalf("GET /api/state error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var snap store.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	if len(snap.Rooms) != 1 || snap.Rooms[0].Name != "Attic" {
		t.Errorf("Rooms = %+v, want one room named Attic", snap.Rooms)
	}

	resp, err = http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}
