package tracker

import (
	"context"

	"github.com/arihanv/relay/internal/gateway"
)

// Gated wraps a Client so that every call flows through the rate-limited
// request gateway. Reads are submitted at low priority; status-changing
// calls at high priority. Core components only ever hold a Gated client —
// calling the inner client directly bypasses rate limiting and is a
// correctness violation.
type Gated struct {
	queue *gateway.Queue
	inner Client
}

// NewGated creates a gateway-routed client.
func NewGated(queue *gateway.Queue, inner Client) *Gated {
	return &Gated{queue: queue, inner: inner}
}

// read submits a read operation at low priority and waits for its result.
func (g *Gated) read(op gateway.Operation) (interface{}, error) {
	res := <-g.queue.Submit(op, gateway.PriorityLow)
	return res.Value, res.Err
}

// write submits a status-changing operation at high priority.
func (g *Gated) write(op gateway.Operation) error {
	res := <-g.queue.Submit(op, gateway.PriorityHigh)
	return res.Err
}

func (g *Gated) GetIssue(ctx context.Context, id string) (*Issue, error) {
	v, err := g.read(func() (interface{}, error) {
		return g.inner.GetIssue(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Issue), nil
}

func (g *Gated) ListTeamIssues(ctx context.Context, teamID string) ([]Issue, error) {
	v, err := g.read(func() (interface{}, error) {
		return g.inner.ListTeamIssues(ctx, teamID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Issue), nil
}

func (g *Gated) ListRelations(ctx context.Context, issueID string) ([]Relation, error) {
	v, err := g.read(func() (interface{}, error) {
		return g.inner.ListRelations(ctx, issueID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Relation), nil
}

func (g *Gated) GetTeam(ctx context.Context, teamID string) (*Team, error) {
	v, err := g.read(func() (interface{}, error) {
		return g.inner.GetTeam(ctx, teamID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Team), nil
}

func (g *Gated) GetTeamStates(ctx context.Context, teamID string) ([]WorkflowState, error) {
	v, err := g.read(func() (interface{}, error) {
		return g.inner.GetTeamStates(ctx, teamID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]WorkflowState), nil
}

func (g *Gated) CreateComment(ctx context.Context, issueID, body string) error {
	return g.write(func() (interface{}, error) {
		return nil, g.inner.CreateComment(ctx, issueID, body)
	})
}

func (g *Gated) CreateIssueRelation(ctx context.Context, issueID, relatedIssueID, relType string) error {
	return g.write(func() (interface{}, error) {
		return nil, g.inner.CreateIssueRelation(ctx, issueID, relatedIssueID, relType)
	})
}

func (g *Gated) UpdateIssueState(ctx context.Context, issueID, stateID string) error {
	return g.write(func() (interface{}, error) {
		return nil, g.inner.UpdateIssueState(ctx, issueID, stateID)
	})
}

// Verify Gated implements Client at compile time.
var _ Client = (*Gated)(nil)
