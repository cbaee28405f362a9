package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultEndpoint is the Linear GraphQL API endpoint.
const DefaultEndpoint = "https://api.linear.app/graphql"

// LinearClient talks to the Linear GraphQL API over HTTP.
type LinearClient struct {
	endpoint string
	token    string
	http     *http.Client
}

// NewLinearClient creates a client authenticated with the given API token.
func NewLinearClient(token string) *LinearClient {
	return &LinearClient{
		endpoint: DefaultEndpoint,
		token:    token,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// SetEndpoint overrides the API endpoint. Used in tests.
func (c *LinearClient) SetEndpoint(endpoint string) {
	c.endpoint = endpoint
}

// graphQLError is one entry of a GraphQL response's errors array.
type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code       string `json:"code"`
		RetryAfter int    `json:"retryAfter"`
	} `json:"extensions"`
}

// execute posts a GraphQL request and decodes the data payload into out.
// HTTP 429 responses and RATELIMITED GraphQL errors become RateLimitError
// so the gateway can retry them.
func (c *LinearClient) execute(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(map[string]interface{}{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tracker request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{
			Message:    "HTTP 429",
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("tracker returned HTTP %d: %s", resp.StatusCode, data)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphQLError  `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if len(envelope.Errors) > 0 {
		first := envelope.Errors[0]
		if first.Extensions.Code == "RATELIMITED" {
			return &RateLimitError{Message: first.Message, RetryAfter: first.Extensions.RetryAfter}
		}
		return fmt.Errorf("tracker error: %s", first.Message)
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

const issueFields = `id identifier title description
	team { id key name }
	assignee { id name email }
	state { id name type }`

// GetIssue fetches a single issue by ID or identifier.
func (c *LinearClient) GetIssue(ctx context.Context, id string) (*Issue, error) {
	query := fmt.Sprintf(`query($id: String!) { issue(id: $id) { %s } }`, issueFields)

	var data struct {
		Issue *Issue `json:"issue"`
	}
	if err := c.execute(ctx, query, map[string]interface{}{"id": id}, &data); err != nil {
		return nil, err
	}
	if data.Issue == nil {
		return nil, fmt.Errorf("issue %s not found", id)
	}
	return data.Issue, nil
}

// ListTeamIssues fetches a team's issues with their outgoing relations.
// Relations carry the blocking direction: an entry of type "blocks" on issue
// X means X blocks the related issue.
func (c *LinearClient) ListTeamIssues(ctx context.Context, teamID string) ([]Issue, error) {
	query := `query($teamId: String!) {
		team(id: $teamId) {
			issues(first: 200) {
				nodes {
					id identifier title
					state { id name type }
					relations {
						nodes {
							id type
							relatedIssue { id identifier state { id name type } }
						}
					}
				}
			}
		}
	}`

	var data struct {
		Team *struct {
			Issues struct {
				Nodes []struct {
					ID         string         `json:"id"`
					Identifier string         `json:"identifier"`
					Title      string         `json:"title"`
					State      *WorkflowState `json:"state"`
					Relations  struct {
						Nodes []Relation `json:"nodes"`
					} `json:"relations"`
				} `json:"nodes"`
			} `json:"issues"`
		} `json:"team"`
	}
	if err := c.execute(ctx, query, map[string]interface{}{"teamId": teamID}, &data); err != nil {
		return nil, err
	}
	if data.Team == nil {
		return nil, fmt.Errorf("team %s not found", teamID)
	}

	issues := make([]Issue, 0, len(data.Team.Issues.Nodes))
	for _, n := range data.Team.Issues.Nodes {
		issues = append(issues, Issue{
			ID:         n.ID,
			Identifier: n.Identifier,
			Title:      n.Title,
			State:      n.State,
			Relations:  n.Relations.Nodes,
		})
	}
	return issues, nil
}

// ListRelations fetches the outgoing relations of an issue.
func (c *LinearClient) ListRelations(ctx context.Context, issueID string) ([]Relation, error) {
	query := `query($id: String!) {
		issue(id: $id) {
			relations {
				nodes {
					id type
					relatedIssue { id identifier state { id name type } }
				}
			}
		}
	}`

	var data struct {
		Issue *struct {
			Relations struct {
				Nodes []Relation `json:"nodes"`
			} `json:"relations"`
		} `json:"issue"`
	}
	if err := c.execute(ctx, query, map[string]interface{}{"id": issueID}, &data); err != nil {
		return nil, err
	}
	if data.Issue == nil {
		return nil, fmt.Errorf("issue %s not found", issueID)
	}
	return data.Issue.Relations.Nodes, nil
}

// GetTeam fetches a team by ID.
func (c *LinearClient) GetTeam(ctx context.Context, teamID string) (*Team, error) {
	query := `query($id: String!) { team(id: $id) { id key name } }`

	var data struct {
		Team *Team `json:"team"`
	}
	if err := c.execute(ctx, query, map[string]interface{}{"id": teamID}, &data); err != nil {
		return nil, err
	}
	if data.Team == nil {
		return nil, fmt.Errorf("team %s not found", teamID)
	}
	return data.Team, nil
}

// GetTeamStates fetches the workflow states of a team.
func (c *LinearClient) GetTeamStates(ctx context.Context, teamID string) ([]WorkflowState, error) {
	query := `query($id: String!) { team(id: $id) { states { nodes { id name type } } } }`

	var data struct {
		Team *struct {
			States struct {
				Nodes []WorkflowState `json:"nodes"`
			} `json:"states"`
		} `json:"team"`
	}
	if err := c.execute(ctx, query, map[string]interface{}{"id": teamID}, &data); err != nil {
		return nil, err
	}
	if data.Team == nil {
		return nil, fmt.Errorf("team %s not found", teamID)
	}
	return data.Team.States.Nodes, nil
}

// CreateComment posts a comment on an issue.
func (c *LinearClient) CreateComment(ctx context.Context, issueID, body string) error {
	query := `mutation($issueId: String!, $body: String!) {
		commentCreate(input: { issueId: $issueId, body: $body }) { success }
	}`

	var data struct {
		CommentCreate struct {
			Success bool `json:"success"`
		} `json:"commentCreate"`
	}
	if err := c.execute(ctx, query, map[string]interface{}{"issueId": issueID, "body": body}, &data); err != nil {
		return err
	}
	if !data.CommentCreate.Success {
		return fmt.Errorf("comment on %s was not accepted", issueID)
	}
	return nil
}

// CreateIssueRelation declares a relation between two issues.
func (c *LinearClient) CreateIssueRelation(ctx context.Context, issueID, relatedIssueID, relType string) error {
	query := `mutation($issueId: String!, $relatedIssueId: String!, $type: IssueRelationType!) {
		issueRelationCreate(input: { issueId: $issueId, relatedIssueId: $relatedIssueId, type: $type }) { success }
	}`

	var data struct {
		IssueRelationCreate struct {
			Success bool `json:"success"`
		} `json:"issueRelationCreate"`
	}
	vars := map[string]interface{}{
		"issueId":        issueID,
		"relatedIssueId": relatedIssueID,
		"type":           relType,
	}
	if err := c.execute(ctx, query, vars, &data); err != nil {
		return err
	}
	if !data.IssueRelationCreate.Success {
		return fmt.Errorf("relation %s -> %s was not accepted", issueID, relatedIssueID)
	}
	return nil
}

// UpdateIssueState moves an issue to the given workflow state.
func (c *LinearClient) UpdateIssueState(ctx context.Context, issueID, stateID string) error {
	query := `mutation($id: String!, $stateId: String!) {
		issueUpdate(id: $id, input: { stateId: $stateId }) { success }
	}`

	var data struct {
		IssueUpdate struct {
			Success bool `json:"success"`
		} `json:"issueUpdate"`
	}
	if err := c.execute(ctx, query, map[string]interface{}{"id": issueID, "stateId": stateID}, &data); err != nil {
		return err
	}
	if !data.IssueUpdate.Success {
		return fmt.Errorf("state update for %s was not accepted", issueID)
	}
	return nil
}

// Verify LinearClient implements Client at compile time.
var _ Client = (*LinearClient)(nil)
