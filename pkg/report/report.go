// Package report builds and persists the run summary: enough for an
// operator to audit completeness without re-querying the API.
package report

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/akachiryo/github-provisioner/pkg/provision"
)

// Summary is the flat terminal record of one provisioning run.
type Summary struct {
	Timestamp time.Time

	// TotalItems is the size of the original ordered input.
	TotalItems int

	// CreatedByKind counts successes per resource kind, derived from the
	// partition property: created = submitted - failed for every kind.
	CreatedByKind map[provision.Kind]int

	// RetryCreated counts resources recovered by the retry rounds.
	RetryCreated int

	// FinalFailed counts items that exhausted all retry rounds.
	FinalFailed int

	Elapsed time.Duration

	// Resources lists every created resource for the audit trail.
	Resources []provision.RemoteResource
}

// Build derives a summary from the original items and the engine's result.
func Build(items []provision.WorkItem, result provision.RunResult) Summary {
	totalByKind := make(map[provision.Kind]int)
	for _, item := range items {
		totalByKind[item.Kind]++
	}

	createdByKind := make(map[provision.Kind]int, len(totalByKind))
	for kind, total := range totalByKind {
		createdByKind[kind] = total
	}
	for _, item := range result.Failed {
		createdByKind[item.Kind]--
	}

	return Summary{
		Timestamp:     time.Now(),
		TotalItems:    len(items),
		CreatedByKind: createdByKind,
		RetryCreated:  len(result.RetryCreated),
		FinalFailed:   len(result.Failed),
		Elapsed:       result.Elapsed,
		Resources:     result.AllCreated(),
	}
}

// TotalCreated sums successes across kinds.
func (s Summary) TotalCreated() int {
	total := 0
	for _, n := range s.CreatedByKind {
		total += n
	}
	return total
}

// SuccessRate returns created/total as a percentage. 100 for an empty run.
func (s Summary) SuccessRate() float64 {
	if s.TotalItems == 0 {
		return 100
	}
	return float64(s.TotalCreated()) / float64(s.TotalItems) * 100
}

// kindOrder fixes the summary's per-kind line order.
var kindOrder = []provision.Kind{
	provision.KindIssue,
	provision.KindProject,
	provision.KindWikiPage,
	provision.KindDiscussion,
}

// Write renders the summary as the flat text record the operator reads.
func (s Summary) Write(w io.Writer) error {
	fmt.Fprintf(w, "Provisioning Results\n")
	fmt.Fprintf(w, "Timestamp: %s\n", s.Timestamp.Format("2006-01-02 15:04:05"))
	for _, kind := range kindOrder {
		if n, ok := s.CreatedByKind[kind]; ok {
			fmt.Fprintf(w, "%s created: %d\n", kind, n)
		}
	}
	fmt.Fprintf(w, "Total created: %d/%d\n", s.TotalCreated(), s.TotalItems)
	if s.RetryCreated > 0 {
		fmt.Fprintf(w, "Created by retry rounds: %d\n", s.RetryCreated)
	}
	if s.FinalFailed > 0 {
		fmt.Fprintf(w, "Final failed: %d\n", s.FinalFailed)
	}
	fmt.Fprintf(w, "Execution time: %.1fs\n", s.Elapsed.Seconds())
	fmt.Fprintf(w, "Success rate: %.1f%%\n", s.SuccessRate())

	if len(s.Resources) > 0 {
		fmt.Fprintf(w, "\nCreated resources:\n")
		for _, r := range s.Resources {
			fmt.Fprintf(w, "#%d: %s\n", r.ExternalID, r.Title)
		}
	}

	return nil
}

// WriteFile persists the summary to path.
func (s Summary) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create result file: %w", err)
	}
	defer f.Close()

	if err := s.Write(f); err != nil {
		return fmt.Errorf("write result file: %w", err)
	}
	return nil
}
