package client

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeAgent records the last request and plays back canned responses.
type fakeAgent struct {
	srv      *httptest.Server
	path     string
	method   string
	body     []byte
	status   int
	response string
}

func newFakeAgent(t *testing.T, status int, response string) *fakeAgent {
	t.Helper()
	a := &fakeAgent{status: status, response: response}
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.path = r.URL.RequestURI()
		a.method = r.Method
		a.body, _ = io.ReadAll(r.Body)
		w.WriteHeader(a.status)
		_, _ = io.WriteString(w, a.response)
	}))
	t.Cleanup(a.srv.Close)
	return a
}

func runCommand(t *testing.T, a *fakeAgent, args ...string) string {
	t.Helper()
	root := NewRoot(func() string { return a.srv.URL })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("execute %v: %v", args, err)
	}
	return out.String()
}

func TestQueueAdd(t *testing.T) {
	a := newFakeAgent(t, http.StatusAccepted, `{"seq":7}`)
	out := runCommand(t, a,
		"queue", "add",
		"--device-time", "2026-08-28T10:00:00Z",
		"--lat", "37.7", "--lon", "-122.4", "--speed", "12.5")

	if a.method != http.MethodPost || a.path != "/v1/locations" {
		t.Fatalf("request %s %s", a.method, a.path)
	}
	var req map[string]any
	if err := json.Unmarshal(a.body, &req); err != nil {
		t.Fatalf("body: %v", err)
	}
	if req["deviceTime"] != "2026-08-28T10:00:00Z" || req["speed"] != 12.5 {
		t.Fatalf("request body %v", req)
	}
	if _, present := req["heading"]; present {
		t.Fatalf("unset optional sent: %v", req)
	}
	if !strings.Contains(out, `"seq": 7`) {
		t.Fatalf("output %q", out)
	}
}

func TestQueueFlush(t *testing.T) {
	a := newFakeAgent(t, http.StatusOK, `{"flushed":true,"remaining":0}`)
	out := runCommand(t, a, "queue", "flush")
	if a.path != "/v1/flush" {
		t.Fatalf("path %s", a.path)
	}
	if !strings.Contains(out, `"flushed": true`) {
		t.Fatalf("output %q", out)
	}
}

func TestQueueStats(t *testing.T) {
	a := newFakeAgent(t, http.StatusOK, `{"queue":"default","size":3,"lastSeq":5,"lastAppliedSeq":2}`)
	out := runCommand(t, a, "queue", "stats")
	if a.method != http.MethodGet || a.path != "/v1/queue/stats" {
		t.Fatalf("request %s %s", a.method, a.path)
	}
	if !strings.Contains(out, `"lastAppliedSeq": 2`) {
		t.Fatalf("output %q", out)
	}
}

func TestQueueListWithFilter(t *testing.T) {
	a := newFakeAgent(t, http.StatusOK, `{"count":0,"entries":[]}`)
	runCommand(t, a, "queue", "list", "--filter", "seq > 2")
	if a.path != "/v1/queue/entries?filter=seq+%3E+2" {
		t.Fatalf("path %s", a.path)
	}
}

func TestQueueResetRequiresConfirm(t *testing.T) {
	a := newFakeAgent(t, http.StatusNoContent, "")
	root := NewRoot(func() string { return a.srv.URL })
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"queue", "reset"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error without --confirm")
	}
	if a.path != "" {
		t.Fatalf("agent was called: %s", a.path)
	}
}

func TestQueueResetConfirmed(t *testing.T) {
	a := newFakeAgent(t, http.StatusNoContent, "")
	out := runCommand(t, a, "queue", "reset", "--confirm")
	if a.path != "/v1/queue/reset" {
		t.Fatalf("path %s", a.path)
	}
	if !strings.Contains(out, "OK") {
		t.Fatalf("output %q", out)
	}
}

func TestEmptyResponseBodyPrintsStatus(t *testing.T) {
	a := newFakeAgent(t, http.StatusNoContent, "")
	out := runCommand(t, a, "queue", "flush")
	if strings.Contains(out, "null") {
		t.Fatalf("empty body rendered as null: %q", out)
	}
	if !strings.Contains(out, "OK") {
		t.Fatalf("output %q", out)
	}
}

func TestQueueAutoFlushStart(t *testing.T) {
	a := newFakeAgent(t, http.StatusOK, `{"intervalMs":60000}`)
	runCommand(t, a, "queue", "autoflush", "start", "--interval-ms", "60000")
	if a.path != "/v1/autoflush/start?intervalMs=60000" {
		t.Fatalf("path %s", a.path)
	}
}

func TestAgentErrorSurfaced(t *testing.T) {
	a := newFakeAgent(t, http.StatusBadRequest, `{"error":"locqueue: invalid sample: latitude 95 out of range"}`)
	root := NewRoot(func() string { return a.srv.URL })
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"queue", "add", "--device-time", "t", "--lat", "95", "--lon", "0"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "invalid sample") {
		t.Fatalf("error %v", err)
	}
}
