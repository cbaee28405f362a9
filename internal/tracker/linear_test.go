package tracker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(handler http.HandlerFunc) (*LinearClient, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := NewLinearClient("test-token")
	c.SetEndpoint(srv.URL)
	return c, srv
}

func TestGetIssue(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		w.Write([]byte(`{"data":{"issue":{
			"id":"uuid-1","identifier":"ENG-42","title":"Fix login",
			"team":{"id":"team-1","key":"ENG","name":"Engineering"},
			"state":{"id":"st-1","name":"Todo","type":"unstarted"}}}}`))
	})
	defer srv.Close()

	issue, err := c.GetIssue(context.Background(), "ENG-42")
	if err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	if issue.Identifier != "ENG-42" {
		t.Errorf("Identifier = %s, want ENG-42", issue.Identifier)
	}
	if issue.Team == nil || issue.Team.ID != "team-1" {
		t.Errorf("Team = %+v, want team-1", issue.Team)
	}
}

func TestGetIssueNotFound(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"issue":null}}`))
	})
	defer srv.Close()

	if _, err := c.GetIssue(context.Background(), "ENG-999"); err == nil {
		t.Fatal("expected error for missing issue")
	}
}

func TestHTTP429BecomesRateLimitError(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	defer srv.Close()

	_, err := c.GetIssue(context.Background(), "ENG-1")
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("err = %v, want RateLimitError", err)
	}
	if rle.RetryAfter != 30 {
		t.Errorf("RetryAfter = %d, want 30", rle.RetryAfter)
	}
	if !rle.Throttle() {
		t.Error("RateLimitError must classify as throttling")
	}
}

func TestGraphQLRateLimited(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"slow down","extensions":{"code":"RATELIMITED","retryAfter":5}}]}`))
	})
	defer srv.Close()

	_, err := c.GetIssue(context.Background(), "ENG-1")
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("err = %v, want RateLimitError", err)
	}
	if rle.RetryAfterSeconds() != 5 {
		t.Errorf("RetryAfterSeconds = %d, want 5", rle.RetryAfterSeconds())
	}
}

func TestGraphQLLogicErrorIsNotThrottle(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"field does not exist","extensions":{"code":"GRAPHQL_VALIDATION_FAILED"}}]}`))
	})
	defer srv.Close()

	_, err := c.GetIssue(context.Background(), "ENG-1")
	if err == nil {
		t.Fatal("expected error")
	}
	var rle *RateLimitError
	if errors.As(err, &rle) {
		t.Errorf("logic error misclassified as rate limit: %v", err)
	}
}

func TestListTeamIssuesCarriesRelations(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"team":{"issues":{"nodes":[
			{"id":"a","identifier":"ENG-1","title":"A",
			 "state":{"id":"s1","name":"In Progress","type":"started"},
			 "relations":{"nodes":[{"id":"r1","type":"blocks",
				"relatedIssue":{"id":"b","identifier":"ENG-2"}}]}},
			{"id":"b","identifier":"ENG-2","title":"B",
			 "state":{"id":"s2","name":"Todo","type":"unstarted"},
			 "relations":{"nodes":[]}}
		]}}}}`))
	})
	defer srv.Close()

	issues, err := c.ListTeamIssues(context.Background(), "team-1")
	if err != nil {
		t.Fatalf("ListTeamIssues: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("got %d issues, want 2", len(issues))
	}
	if len(issues[0].Relations) != 1 || issues[0].Relations[0].Type != "blocks" {
		t.Errorf("ENG-1 relations = %+v, want one blocks relation", issues[0].Relations)
	}
	if issues[0].Relations[0].RelatedIssue.Identifier != "ENG-2" {
		t.Errorf("relation target = %s, want ENG-2", issues[0].Relations[0].RelatedIssue.Identifier)
	}
}

func TestCreateCommentRejected(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"commentCreate":{"success":false}}}`))
	})
	defer srv.Close()

	if err := c.CreateComment(context.Background(), "uuid-1", "hello"); err == nil {
		t.Fatal("expected error for rejected comment")
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"plain seconds", "30", 30},
		{"padded", " 5 ", 5},
		{"empty", "", 0},
		{"http date is ignored", "Wed, 21 Oct 2026 07:28:00 GMT", 0},
		{"negative", "-1", 0},
		{"garbage", "soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRetryAfter(tt.header); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %d, want %d", tt.header, got, tt.want)
			}
		})
	}
}

func TestDoneStateType(t *testing.T) {
	tests := []struct {
		stateType string
		want      bool
	}{
		{StateTypeCompleted, true},
		{StateTypeCanceled, true},
		{StateTypeStarted, false},
		{StateTypeUnstarted, false},
		{StateTypeBacklog, false},
	}

	for _, tt := range tests {
		if got := DoneStateType(tt.stateType); got != tt.want {
			t.Errorf("DoneStateType(%s) = %v, want %v", tt.stateType, got, tt.want)
		}
	}
}
