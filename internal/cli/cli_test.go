package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeAPI отвечает заготовленными ответами по пути запроса.
func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/workers", func(w http.ResponseWriter, r *http.Request) {
		workers := []map[string]any{
			{"worker_id": "w1", "state": "RUNNING", "is_healthy": true, "pid": 4242, "symbols": []string{"BTC/USDT"}, "errors_count": 0},
			{"worker_id": "w2", "state": "ERROR", "is_healthy": false, "symbols": []string{"ETH/USDT"}, "errors_count": 3},
		}
		if r.URL.Query().Get("state") == "ERROR" {
			workers = workers[1:]
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": workers, "total": len(workers)})
	})
	mux.HandleFunc("GET /api/v1/workers/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "w1" {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error": map[string]string{"code": "NOT_FOUND", "message": "worker not found"},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"worker_id":     "w1",
			"strategy_path": "strategies/w1.py",
			"state":         "RUNNING",
			"symbols":       []string{"BTC/USDT"},
			"subscription":  map[string]any{"topics": []string{"market.BTC/USDT.kline"}},
		}})
	})
	mux.HandleFunc("GET /api/v1/workers/{id}/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"worker_id":           r.PathValue("id"),
			"state":               "RUNNING",
			"is_healthy":          false,
			"restart_delay":       2.0,
			"restart_recommended": true,
		}})
	})
	mux.HandleFunc("GET /api/v1/supervisor/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"total_workers": 2, "healthy_workers": 1, "unhealthy_workers": 1, "running": true,
		}})
	})
	mux.HandleFunc("GET /api/v1/broker/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"total_subscriptions": 2, "total_topics": 2, "messages_published": 10, "messages_dropped": 1,
			"preprocessors": []string{"stale", "tag_source"},
		}})
	})
	mux.HandleFunc("GET /api/v1/broker/topics", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{
			{"topic": "market.BTC/USDT.kline", "subscribers": 2},
		}, "total": 1})
	})
	mux.HandleFunc("GET /api/v1/broker/subscribers", func(w http.ResponseWriter, r *http.Request) {
		dt := r.URL.Query().Get("data_type")
		if dt == "" {
			dt = "kline"
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"symbol": r.URL.Query().Get("symbol"), "data_type": dt, "workers": []string{"w1", "w2"},
		}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// run выполняет CLI с аргументами и возвращает stdout.
func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd("test", &stdout, &stderr)
	cmd.SetArgs(append([]string{"--api-url", srv.URL}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func TestWorkersList(t *testing.T) {
	srv := fakeAPI(t)

	out, err := run(t, srv, "workers", "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"ID", "STATE", "w1", "RUNNING", "4242", "w2", "ERROR"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, srv, "workers", "list", "--state", "ERROR")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out, "w1") {
		t.Errorf("state filter not applied:\n%s", out)
	}
}

func TestWorkersList_JSON(t *testing.T) {
	srv := fakeAPI(t)

	out, err := run(t, srv, "--json", "workers", "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var workers []WorkerResponse
	if err := json.Unmarshal([]byte(out), &workers); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(workers) != 2 || workers[0].PID != 4242 || workers[1].ErrorsCount != 3 {
		t.Errorf("unexpected workers %+v", workers)
	}
}

func TestWorkersShow(t *testing.T) {
	srv := fakeAPI(t)

	out, err := run(t, srv, "workers", "show", "w1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "strategies/w1.py") || !strings.Contains(out, "market.BTC/USDT.kline") {
		t.Errorf("unexpected output:\n%s", out)
	}

	_, err = run(t, srv, "workers", "show", "ghost")
	if err == nil || !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("expected NOT_FOUND error, got %v", err)
	}

	if _, err := run(t, srv, "workers", "show"); err == nil {
		t.Error("expected argument error")
	}
}

func TestWorkersHealth(t *testing.T) {
	srv := fakeAPI(t)

	out, err := run(t, srv, "workers", "health", "w1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Restart recommended") || !strings.Contains(out, "2s") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestSupervisorStats(t *testing.T) {
	srv := fakeAPI(t)

	out, err := run(t, srv, "supervisor", "stats")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Unhealthy") || !strings.Contains(out, "true") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestBrokerCommands(t *testing.T) {
	srv := fakeAPI(t)

	out, err := run(t, srv, "broker", "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out, "stale,tag_source") || !strings.Contains(out, "10") {
		t.Errorf("unexpected stats output:\n%s", out)
	}

	out, err = run(t, srv, "broker", "topics")
	if err != nil {
		t.Fatalf("topics: %v", err)
	}
	if !strings.Contains(out, "market.BTC/USDT.kline") {
		t.Errorf("unexpected topics output:\n%s", out)
	}

	out, err = run(t, srv, "broker", "subscribers", "BTC/USDT", "--data-type", "tick")
	if err != nil {
		t.Fatalf("subscribers: %v", err)
	}
	if !strings.Contains(out, "w2") || !strings.Contains(out, "tick") {
		t.Errorf("unexpected subscribers output:\n%s", out)
	}
}

func TestOutput_Table(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutputTo(false, &buf, &buf)
	out.Table([]string{"A", "LONG"}, [][]string{{"1", "2"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[1], "-") || !strings.Contains(lines[1], "----") {
		t.Errorf("unexpected separator %q", lines[1])
	}
}

func TestOutput_Workers(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutputTo(false, &buf, &buf)
	out.Workers([]WorkerResponse{
		{WorkerID: "w1", State: "RUNNING", IsHealthy: true, PID: 7, Symbols: []string{"BTC/USDT", "ETH/USDT"}},
		{WorkerID: "w2", State: "ERROR", ErrorsCount: 2},
	})

	got := buf.String()
	for _, want := range []string{"BTC/USDT,ETH/USDT", "2 workers, 1 healthy"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	lines := strings.Split(got, "\n")
	w2 := lines[3]
	if !strings.HasPrefix(w2, "w2") || strings.Count(w2, "-") != 2 {
		t.Errorf("w2 row should show dashes for pid and heartbeat: %q", w2)
	}
}

func TestOutput_WorkerSubscription(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutputTo(false, &buf, &buf)
	out.Worker(WorkerResponse{
		WorkerID: "w1",
		State:    "RUNNING",
		Subscription: &SubscriptionResponse{
			DataTypes: []string{"tick", "bar"},
			Topics:    []string{"market.BTC/USDT.tick", "market.BTC/USDT.bar"},
		},
	})

	got := buf.String()
	if !strings.Contains(got, "tick,bar") || !strings.Contains(got, "market.BTC/USDT.bar") {
		t.Errorf("subscription not rendered:\n%s", got)
	}
}

func TestOutput_JSONMode(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutputTo(true, &buf, &buf)
	out.Health(HealthReport{WorkerID: "w1", State: "ERROR", RestartRecommended: true})

	var r HealthReport
	if err := json.Unmarshal(buf.Bytes(), &r); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if r.WorkerID != "w1" || !r.RestartRecommended {
		t.Errorf("unexpected report %+v", r)
	}
}
