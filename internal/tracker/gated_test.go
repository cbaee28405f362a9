package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arihanv/relay/internal/gateway"
)

// stubClient is a minimal in-memory Client for Gated tests.
type stubClient struct {
	issue    *Issue
	issues   []Issue
	err      error
	comments []string
}

func (s *stubClient) GetIssue(ctx context.Context, id string) (*Issue, error) {
	return s.issue, s.err
}

func (s *stubClient) ListTeamIssues(ctx context.Context, teamID string) ([]Issue, error) {
	return s.issues, s.err
}

func (s *stubClient) ListRelations(ctx context.Context, issueID string) ([]Relation, error) {
	return nil, s.err
}

func (s *stubClient) GetTeam(ctx context.Context, teamID string) (*Team, error) {
	return &Team{ID: teamID}, s.err
}

func (s *stubClient) GetTeamStates(ctx context.Context, teamID string) ([]WorkflowState, error) {
	return nil, s.err
}

func (s *stubClient) CreateComment(ctx context.Context, issueID, body string) error {
	s.comments = append(s.comments, body)
	return s.err
}

func (s *stubClient) CreateIssueRelation(ctx context.Context, issueID, relatedIssueID, relType string) error {
	return s.err
}

func (s *stubClient) UpdateIssueState(ctx context.Context, issueID, stateID string) error {
	return s.err
}

func testQueue() *gateway.Queue {
	return gateway.New(gateway.Config{
		RequestsPerSecond: 100,
		Burst:             50,
		InterRequestDelay: time.Millisecond,
		MaxRetries:        1,
		RetryDelay:        time.Millisecond,
	})
}

func TestGatedRoutesThroughQueue(t *testing.T) {
	q := testQueue()
	stub := &stubClient{issue: &Issue{ID: "uuid-1", Identifier: "ENG-7"}}
	g := NewGated(q, stub)

	issue, err := g.GetIssue(context.Background(), "ENG-7")
	if err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	if issue.Identifier != "ENG-7" {
		t.Errorf("Identifier = %s, want ENG-7", issue.Identifier)
	}

	if stats := q.Stats(); stats.WindowCount == 0 {
		t.Error("expected the call to be recorded in the gateway window")
	}
}

func TestGatedPropagatesErrors(t *testing.T) {
	q := testQueue()
	boom := errors.New("tracker down")
	g := NewGated(q, &stubClient{err: boom})

	if _, err := g.GetIssue(context.Background(), "ENG-7"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want tracker down", err)
	}
	if err := g.CreateComment(context.Background(), "uuid-1", "hi"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want tracker down", err)
	}
}

func TestGatedWrites(t *testing.T) {
	q := testQueue()
	stub := &stubClient{}
	g := NewGated(q, stub)

	if err := g.CreateComment(context.Background(), "uuid-1", "dispatched"); err != nil {
		t.Fatalf("CreateComment: %v", err)
	}
	if len(stub.comments) != 1 || stub.comments[0] != "dispatched" {
		t.Errorf("comments = %v, want [dispatched]", stub.comments)
	}
}
