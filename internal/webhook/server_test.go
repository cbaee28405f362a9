package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arihanv/relay/internal/orchestrator"
)

// fakeCoordinator records the events the HTTP surface forwards.
type fakeCoordinator struct {
	mu          sync.Mutex
	assignments []orchestrator.AssignmentEvent
	stopped     []string
	stopErr     error
}

func (f *fakeCoordinator) HandleAssignment(ctx context.Context, ev orchestrator.AssignmentEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignments = append(f.assignments, ev)
	return nil
}

func (f *fakeCoordinator) StopTask(ctx context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stopped = append(f.stopped, taskID)
	return nil
}

func (f *fakeCoordinator) Status() orchestrator.Status {
	return orchestrator.Status{PoolSize: 4}
}

func (f *fakeCoordinator) Sessions() []orchestrator.ActiveSession {
	return []orchestrator.ActiveSession{{TaskID: "t1", Worker: 2}}
}

func (f *fakeCoordinator) assignmentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.assignments)
}

func issueBody(assigneeID string) []byte {
	return []byte(fmt.Sprintf(`{
		"action": "update",
		"type": "Issue",
		"data": {
			"id": "task-1",
			"identifier": "ENG-9",
			"title": "Do the thing",
			"teamId": "team-a",
			"assignee": {"id": %q}
		}
	}`, assigneeID))
}

func postWebhook(t *testing.T, srv *Server, body []byte, sign func([]byte) string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/linear", strings.NewReader(string(body)))
	if sign != nil {
		req.Header.Set("Linear-Signature", sign(body))
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func waitForAssignments(t *testing.T, coord *fakeCoordinator, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if coord.assignmentCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("assignments = %d, want %d", coord.assignmentCount(), want)
}

func TestWebhookAcceptsSignedAssignment(t *testing.T) {
	coord := &fakeCoordinator{}
	srv := New(Config{Secret: "s3cret", TargetUserID: "me"}, coord)

	rec := postWebhook(t, srv, issueBody("me"), func(b []byte) string {
		return signBody(b, "s3cret")
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	waitForAssignments(t, coord, 1)
	coord.mu.Lock()
	ev := coord.assignments[0]
	coord.mu.Unlock()
	if ev.TaskID != "task-1" || ev.Identifier != "ENG-9" || ev.TeamID != "team-a" {
		t.Errorf("event = %+v", ev)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	coord := &fakeCoordinator{}
	srv := New(Config{Secret: "s3cret"}, coord)

	rec := postWebhook(t, srv, issueBody("me"), func(b []byte) string {
		return signBody(b, "wrong-secret")
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	rec = postWebhook(t, srv, issueBody("me"), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unsigned status = %d, want 401", rec.Code)
	}
	if coord.assignmentCount() != 0 {
		t.Errorf("assignments = %d, want none", coord.assignmentCount())
	}
}

func TestWebhookAcceptsGitHubStyleSignature(t *testing.T) {
	coord := &fakeCoordinator{}
	srv := New(Config{Secret: "s3cret", TargetUserID: "me"}, coord)

	rec := postWebhook(t, srv, issueBody("me"), func(b []byte) string {
		return "sha256=" + signBody(b, "s3cret")
	})
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for sha256= prefixed signature", rec.Code)
	}
}

func TestWebhookFiltersOtherAssignees(t *testing.T) {
	coord := &fakeCoordinator{}
	srv := New(Config{TargetUserID: "me"}, coord)

	rec := postWebhook(t, srv, issueBody("someone-else"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for ignored event", rec.Code)
	}
	time.Sleep(20 * time.Millisecond)
	if coord.assignmentCount() != 0 {
		t.Errorf("assignments = %d, want none for foreign assignee", coord.assignmentCount())
	}
}

func TestWebhookIgnoresNonIssueEvents(t *testing.T) {
	coord := &fakeCoordinator{}
	srv := New(Config{}, coord)

	body := []byte(`{"action": "update", "type": "Comment", "data": {"id": "c1"}}`)
	rec := postWebhook(t, srv, body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	time.Sleep(20 * time.Millisecond)
	if coord.assignmentCount() != 0 {
		t.Errorf("assignments = %d, want none for comment event", coord.assignmentCount())
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := New(Config{}, &fakeCoordinator{})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var st orchestrator.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.PoolSize != 4 {
		t.Errorf("pool size = %d, want 4", st.PoolSize)
	}
}

func TestStopEndpoint(t *testing.T) {
	coord := &fakeCoordinator{}
	srv := New(Config{}, coord)

	req := httptest.NewRequest(http.MethodPost, "/api/stop/task-9", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(coord.stopped) != 1 || coord.stopped[0] != "task-9" {
		t.Errorf("stopped = %v, want [task-9]", coord.stopped)
	}
}

func TestStopEndpointUnknownTask(t *testing.T) {
	coord := &fakeCoordinator{stopErr: fmt.Errorf("no active session for task-9")}
	srv := New(Config{}, coord)

	req := httptest.NewRequest(http.MethodPost, "/api/stop/task-9", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
