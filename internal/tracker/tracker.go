// Package tracker provides the issue-tracking backend client. Core
// components never talk to the backend directly; they hold a Client that is
// the Gated decorator, which routes every call through the rate-limited
// request gateway.
package tracker

import "context"

// Workflow state types used by the backend. A task counts as done when its
// state type is completed or canceled.
const (
	StateTypeBacklog   = "backlog"
	StateTypeUnstarted = "unstarted"
	StateTypeStarted   = "started"
	StateTypeCompleted = "completed"
	StateTypeCanceled  = "canceled"
)

// RelationBlocks is the relation type meaning "this issue blocks the related
// issue". Relations are only queryable from the blocking side.
const RelationBlocks = "blocks"

// DoneStateType returns true if a workflow state type counts as done.
func DoneStateType(stateType string) bool {
	return stateType == StateTypeCompleted || stateType == StateTypeCanceled
}

// Client is the set of issue-tracker operations the coordinator consumes.
type Client interface {
	// GetIssue fetches a single issue by ID or identifier.
	GetIssue(ctx context.Context, id string) (*Issue, error)
	// ListTeamIssues fetches the issues of a team, including their outgoing
	// relations.
	ListTeamIssues(ctx context.Context, teamID string) ([]Issue, error)
	// ListRelations fetches the outgoing relations of an issue.
	ListRelations(ctx context.Context, issueID string) ([]Relation, error)
	// GetTeam fetches a team by ID.
	GetTeam(ctx context.Context, teamID string) (*Team, error)
	// GetTeamStates fetches the workflow states of a team.
	GetTeamStates(ctx context.Context, teamID string) ([]WorkflowState, error)
	// CreateComment posts a comment on an issue.
	CreateComment(ctx context.Context, issueID, body string) error
	// CreateIssueRelation declares a relation between two issues.
	CreateIssueRelation(ctx context.Context, issueID, relatedIssueID, relType string) error
	// UpdateIssueState moves an issue to the given workflow state.
	UpdateIssueState(ctx context.Context, issueID, stateID string) error
}

// Issue is a tracked task as the backend reports it.
type Issue struct {
	ID          string         `json:"id"`
	Identifier  string         `json:"identifier"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Team        *Team          `json:"team,omitempty"`
	Assignee    *User          `json:"assignee,omitempty"`
	State       *WorkflowState `json:"state,omitempty"`
	Relations   []Relation     `json:"relations,omitempty"`
}

// Team is the grouping an issue belongs to.
type Team struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// User is an issue assignee.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// WorkflowState is one state in a team's workflow.
type WorkflowState struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Relation is a directed relation from an issue to a related issue.
type Relation struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	RelatedIssue *IssueRef `json:"relatedIssue,omitempty"`
}

// IssueRef is a lightweight reference to an issue inside a relation.
type IssueRef struct {
	ID         string         `json:"id"`
	Identifier string         `json:"identifier"`
	State      *WorkflowState `json:"state,omitempty"`
}
