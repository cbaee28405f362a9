// Package prompt builds the work instructions delivered to an autonomous
// worker session for one tracked task.
package prompt

import (
	"fmt"
	"strings"
)

// completionPrefix is the marker a worker prints when its task is done. The
// session monitor scans captured output for it.
const completionPrefix = "TASK_COMPLETE:"

// CompletionMarker returns the exact line a worker must output when the
// task identified by identifier is finished.
func CompletionMarker(identifier string) string {
	return completionPrefix + " " + identifier
}

// Params carries the issue fields the prompt is built from.
type Params struct {
	// Identifier is the human-facing task key (e.g. "ENG-142").
	Identifier string
	// Title is the task title.
	Title string
	// Description is the task description, may be empty.
	Description string
	// BranchPrefix prefixes the feature branch name (e.g. "relay").
	BranchPrefix string
}

// Build renders the full instruction payload for one task.
func Build(p Params) string {
	description := p.Description
	if description == "" {
		description = "No description provided"
	}
	prefix := p.BranchPrefix
	if prefix == "" {
		prefix = "relay"
	}
	branch := fmt.Sprintf("%s/%s-%s", prefix, strings.ToLower(p.Identifier), slugify(p.Title))

	var b strings.Builder
	fmt.Fprintf(&b, "You are executing a tracked issue autonomously. You have full permission to read, write, and edit files, and to run git commands.\n\n")
	fmt.Fprintf(&b, "Issue: %s - %s\n", p.Identifier, p.Title)
	fmt.Fprintf(&b, "Description: %s\n\n", description)
	fmt.Fprintf(&b, "Required steps:\n")
	fmt.Fprintf(&b, "1. Create and check out a feature branch: git checkout -b %s\n", branch)
	fmt.Fprintf(&b, "2. Analyze the issue requirements and the existing codebase\n")
	fmt.Fprintf(&b, "3. Implement the solution\n")
	fmt.Fprintf(&b, "4. Test your implementation where applicable\n")
	fmt.Fprintf(&b, "5. Commit your changes: git add -A && git commit -m %q\n", p.Identifier+": "+p.Title)
	fmt.Fprintf(&b, "6. Push the branch and open a pull request against the main branch\n\n")
	fmt.Fprintf(&b, "Keep changes minimal and focused. Actually execute these steps, do not just describe them.\n\n")
	fmt.Fprintf(&b, "When complete, output %s so the coordinator knows you finished.", CompletionMarker(p.Identifier))
	return b.String()
}

// slugify converts a title into a branch-name-safe suffix.
func slugify(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, s)
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return strings.Trim(s, "-")
}
