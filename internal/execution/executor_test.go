package execution

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"options-dashboard-sync/internal/model"
	"options-dashboard-sync/internal/state"
)

type recordedRequest struct {
	Method    string
	Path      string
	Query     string
	Body      string
	RequestID string
}

type apiServer struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
}

func newAPIServer(t *testing.T) (*apiServer, *RESTExecutor) {
	t.Helper()
	s := &apiServer{status: http.StatusOK}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.requests = append(s.requests, recordedRequest{
			Method:    r.Method,
			Path:      r.URL.Path,
			Query:     r.URL.RawQuery,
			Body:      string(body),
			RequestID: r.Header.Get(RequestIDHeader),
		})
		status := s.status
		s.mu.Unlock()
		if status != http.StatusOK {
			http.Error(w, "unknown ticker", status)
		}
	}))
	t.Cleanup(srv.Close)

	exec, err := NewRESTExecutor(&RESTConfig{BaseURL: srv.URL + "/api/"}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRESTExecutor: %v", err)
	}
	return s, exec
}

func (s *apiServer) last() recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func TestRESTExecutor_Routes(t *testing.T) {
	srv, exec := newAPIServer(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		call   func() error
		method string
		path   string
		query  string
	}{
		{"reload", func() error { return exec.ReloadTicker(ctx, "AAPL") }, http.MethodGet, "/api/ticker/reload", "ticker=AAPL"},
		{"reset", func() error { return exec.ResetPriceLevels(ctx, "AAPL") }, http.MethodGet, "/api/ticker/reset_levels", "ticker=AAPL"},
		{"add", func() error { return exec.AddTicker(ctx, "TSLA") }, http.MethodPut, "/api/ticker/add", "ticker=TSLA"},
		{"remove", func() error { return exec.RemoveTicker(ctx, "TSLA") }, http.MethodDelete, "/api/ticker/remove", "ticker=TSLA"},
		{"favorite", func() error { return exec.SetFavorite(ctx, "SPY", true) }, http.MethodPut, "/api/favorite/SPY", ""},
		{"unfavorite", func() error { return exec.SetFavorite(ctx, "SPY", false) }, http.MethodDelete, "/api/favorite/SPY", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.call(); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := srv.last()
			if got.Method != tc.method || got.Path != tc.path || got.Query != tc.query {
				t.Errorf("got %s %s?%s, want %s %s?%s", got.Method, got.Path, got.Query, tc.method, tc.path, tc.query)
			}
			if _, err := uuid.Parse(got.RequestID); err != nil {
				t.Errorf("request id should be a uuid, got %q", got.RequestID)
			}
		})
	}
}

func TestRESTExecutor_JSONBodies(t *testing.T) {
	srv, exec := newAPIServer(t)
	ctx := context.Background()

	if err := exec.UpdatePriceLevels(ctx, "AAPL", []float64{151.5, 148, 150.125}); err != nil {
		t.Fatalf("UpdatePriceLevels: %v", err)
	}
	var levels priceLevelsRequest
	if err := json.Unmarshal([]byte(srv.last().Body), &levels); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if levels.Symbol != "AAPL" || levels.NewLevels != "148.00, 150.13, 151.50" {
		t.Errorf("unexpected body %+v", levels)
	}

	mode := model.ReplayMode{Playing: true, Symbol: "AAPL", Speed: 250}
	if err := exec.SetReplayMode(ctx, mode); err != nil {
		t.Fatalf("SetReplayMode: %v", err)
	}
	var got model.ReplayMode
	if err := json.Unmarshal([]byte(srv.last().Body), &got); err != nil || got != mode {
		t.Errorf("unexpected replay body %q (%v)", srv.last().Body, err)
	}
	if p := srv.last().Path; p != "/api/ticker/replay_info" {
		t.Errorf("unexpected path %s", p)
	}
}

func TestRESTExecutor_Rejected(t *testing.T) {
	srv, exec := newAPIServer(t)
	srv.status = http.StatusBadRequest

	err := exec.AddTicker(context.Background(), "NOPE")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestLocalExecutor_EchoesReplayMode(t *testing.T) {
	srv, remote := newAPIServer(t)
	engine := state.NewEngine(state.WithLogger(zap.NewNop()))
	local := NewLocalExecutor(remote, engine, zap.NewNop())

	mode := model.ReplayMode{Playing: false, Symbol: "SPY", Speed: 100}
	if err := local.SetReplayMode(context.Background(), mode); err != nil {
		t.Fatalf("SetReplayMode: %v", err)
	}
	if rm := engine.Snapshot().ReplayMode; rm == nil || *rm != mode {
		t.Errorf("replay mode should be echoed locally, got %+v", rm)
	}
	if srv.last().Path != "/api/ticker/replay_info" {
		t.Error("replay mode should still be forwarded")
	}

	if err := local.ReloadTicker(context.Background(), "SPY"); err != nil {
		t.Fatalf("ReloadTicker: %v", err)
	}
	if srv.last().Path != "/api/ticker/reload" {
		t.Error("other intents should pass through")
	}
}

func TestFormatPriceLevels(t *testing.T) {
	if got := FormatPriceLevels(nil); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
	in := []float64{3, 1.005, 2}
	if got := FormatPriceLevels(in); got != "1.01, 2.00, 3.00" {
		t.Errorf("unexpected %q", got)
	}
	if in[0] != 3 {
		t.Error("input must not be reordered")
	}
}
