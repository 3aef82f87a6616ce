// Package provision implements the ordered batch submission engine:
// per-item retry with backoff, fixed-size sequential batches, failure
// aggregation, and a bounded multi-round retry pass over the leftovers.
package provision

import "encoding/json"

// Kind identifies the type of resource a work item creates.
type Kind string

const (
	// KindIssue creates a repository issue.
	KindIssue Kind = "issue"

	// KindProject creates a project board.
	KindProject Kind = "project"

	// KindWikiPage creates a wiki page.
	KindWikiPage Kind = "wiki"

	// KindDiscussion creates a discussion thread.
	KindDiscussion Kind = "discussion"
)

// WorkItem is one "create resource" request with a fixed position in the
// original ordered input. SequenceIndex is assigned once when the item enters
// the system and never changes, including across retries. Attempts is the
// only mutable field; everything else is immutable after construction.
type WorkItem struct {
	SequenceIndex int
	Kind          Kind
	Title         string
	Payload       json.RawMessage

	// Attempts counts Submitter invocations across all retry rounds.
	Attempts int

	// LastClass records the classification of the item's most recent
	// attempt. The retry coordinator uses it to keep non-retryable
	// failures out of later rounds.
	LastClass OutcomeClass
}

// RemoteResource describes a successfully created resource, parsed from the
// API's 201 response body.
type RemoteResource struct {
	// ExternalID is the human-facing identifier (issue number, project number).
	ExternalID int64 `json:"number"`

	// NodeID is the opaque node identifier used for follow-up linking calls.
	NodeID string `json:"node_id"`

	Title  string  `json:"title"`
	Labels []Label `json:"labels"`
}

// Label is a resource label as returned by the API.
type Label struct {
	Name string `json:"name"`
}

// LabelNames returns the plain label names of a created resource.
func (r RemoteResource) LabelNames() []string {
	names := make([]string, 0, len(r.Labels))
	for _, l := range r.Labels {
		names = append(names, l.Name)
	}
	return names
}

// BatchResult partitions one batch's input: every item of the batch appears
// in exactly one of the two lists, never both, never neither.
type BatchResult struct {
	Created []RemoteResource
	Failed  []WorkItem
}
