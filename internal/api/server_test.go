package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"labengine/internal/catalog"
	"labengine/internal/engine"
	"labengine/internal/model"
	"labengine/internal/provisioner"
	"labengine/internal/store"
	"labengine/internal/verify"
)

type testServer struct {
	srv   *Server
	store store.Store
	prov  *provisioner.Fake
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cat, err := catalog.NewStatic([]model.LabEnvironment{
		{
			ID:   "e1",
			Name: "Linux Basics",
			Tasks: []model.LabTask{
				{ID: "t1", Order: 1, Title: "Find your user", Points: 10, HintText: "try whoami",
					Verifier: model.VerifierSpec{Kind: model.VerifierExact, Value: "student"}},
				{ID: "t2", Order: 2, Title: "Kernel version", Points: 20,
					Verifier: model.VerifierSpec{Kind: model.VerifierRegexp, Value: `6\..*`}},
			},
		},
	})
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}

	prov := provisioner.NewFake()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	eng := engine.New(s, cat, prov, verify.NewDispatcher(nil), logger, engine.Options{})
	t.Cleanup(eng.Wait)

	return &testServer{
		srv:   NewServer(":0", s, cat, eng, logger),
		store: s,
		prov:  prov,
	}
}

// waitForState polls the store until the instance reaches the expected state.
func waitForState(t *testing.T, s store.Store, id, expected string, timeout time.Duration) *model.LabInstance {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		inst, err := s.GetInstance(context.Background(), id)
		if err != nil {
			t.Fatalf("GetInstance: %v", err)
		}
		if inst.State == expected {
			return inst
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("instance %s did not reach state %q within %v", id, expected, timeout)
	return nil
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeJSON[map[string]string](t, resp)
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestPanicRecovery(t *testing.T) {
	env := newTestServer(t)
	env.srv.Router().Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	})

	ts := httptest.NewServer(env.srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/boom")
	if err != nil {
		t.Fatalf("GET /boom: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 from recoverer", resp.StatusCode)
	}
}

func TestListEnvironments(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/environments")
	if err != nil {
		t.Fatalf("GET /v1/environments: %v", err)
	}
	defer resp.Body.Close()

	body := decodeJSON[map[string][]environmentSummary](t, resp)
	envs := body["environments"]
	if len(envs) != 1 || envs[0].ID != "e1" {
		t.Fatalf("environments = %+v", envs)
	}
	if envs[0].TaskCount != 2 || envs[0].TotalPoints != 30 {
		t.Errorf("summary = %+v, want 2 tasks / 30 points", envs[0])
	}
}

func TestGetEnvironmentHidesVerifier(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/environments/e1")
	if err != nil {
		t.Fatalf("GET /v1/environments/e1: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var env environmentResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(env.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(env.Tasks))
	}
	for _, needle := range []string{"verifier", "solution", "student"} {
		if strings.Contains(string(raw), needle) {
			t.Errorf("environment response leaks %q", needle)
		}
	}
}

func TestGetEnvironmentNotFound(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/environments/nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
