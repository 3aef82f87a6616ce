package report

import (
	"strings"
	"testing"
	"time"

	"github.com/akachiryo/github-provisioner/pkg/provision"
)

func sampleItems() []provision.WorkItem {
	return []provision.WorkItem{
		{SequenceIndex: 0, Kind: provision.KindIssue, Title: "Task 001: a"},
		{SequenceIndex: 1, Kind: provision.KindIssue, Title: "Task 002: b"},
		{SequenceIndex: 2, Kind: provision.KindIssue, Title: "Task 003: c"},
		{SequenceIndex: 3, Kind: provision.KindWikiPage, Title: "Home"},
	}
}

func TestBuild_DerivesCreatedFromFailures(t *testing.T) {
	result := provision.RunResult{
		Created: []provision.RemoteResource{
			{ExternalID: 1, Title: "Task 001: a"},
			{ExternalID: 2, Title: "Task 002: b"},
			{ExternalID: 3, Title: "Home"},
		},
		Failed: []provision.WorkItem{
			{SequenceIndex: 2, Kind: provision.KindIssue, Title: "Task 003: c"},
		},
		Elapsed: 42 * time.Second,
	}

	summary := Build(sampleItems(), result)

	if summary.TotalItems != 4 {
		t.Errorf("TotalItems = %d, want 4", summary.TotalItems)
	}
	if got := summary.CreatedByKind[provision.KindIssue]; got != 2 {
		t.Errorf("issues created = %d, want 2", got)
	}
	if got := summary.CreatedByKind[provision.KindWikiPage]; got != 1 {
		t.Errorf("wiki pages created = %d, want 1", got)
	}
	if summary.TotalCreated() != 3 {
		t.Errorf("TotalCreated = %d, want 3", summary.TotalCreated())
	}
	if summary.FinalFailed != 1 {
		t.Errorf("FinalFailed = %d, want 1", summary.FinalFailed)
	}
	if summary.SuccessRate() != 75 {
		t.Errorf("SuccessRate = %.1f, want 75.0", summary.SuccessRate())
	}
}

func TestBuild_RetryCreatedCounted(t *testing.T) {
	result := provision.RunResult{
		Created:      []provision.RemoteResource{{ExternalID: 1}},
		RetryCreated: []provision.RemoteResource{{ExternalID: 2}, {ExternalID: 3}},
	}

	summary := Build(sampleItems()[:3], result)

	if summary.RetryCreated != 2 {
		t.Errorf("RetryCreated = %d, want 2", summary.RetryCreated)
	}
	if len(summary.Resources) != 3 {
		t.Errorf("Resources = %d, want 3 (initial + retry)", len(summary.Resources))
	}
}

func TestSuccessRate_EmptyRun(t *testing.T) {
	summary := Build(nil, provision.RunResult{})
	if summary.SuccessRate() != 100 {
		t.Errorf("SuccessRate = %.1f, want 100.0 for empty run", summary.SuccessRate())
	}
}

func TestWrite_Format(t *testing.T) {
	summary := Summary{
		Timestamp:  time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
		TotalItems: 3,
		CreatedByKind: map[provision.Kind]int{
			provision.KindIssue: 2,
		},
		RetryCreated: 1,
		FinalFailed:  1,
		Elapsed:      90 * time.Second,
		Resources: []provision.RemoteResource{
			{ExternalID: 12, Title: "Task 001: a"},
			{ExternalID: 13, Title: "Task 002: b"},
		},
	}

	var buf strings.Builder
	if err := summary.Write(&buf); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Timestamp: 2026-03-01 12:30:00",
		"issue created: 2",
		"Total created: 2/3",
		"Created by retry rounds: 1",
		"Final failed: 1",
		"Execution time: 90.0s",
		"Success rate: 66.7%",
		"#12: Task 001: a",
		"#13: Task 002: b",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWrite_OmitsEmptySections(t *testing.T) {
	summary := Summary{
		Timestamp:     time.Now(),
		TotalItems:    1,
		CreatedByKind: map[provision.Kind]int{provision.KindIssue: 1},
	}

	var buf strings.Builder
	if err := summary.Write(&buf); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	out := buf.String()

	if strings.Contains(out, "retry rounds") {
		t.Error("retry line should be omitted when nothing was retried")
	}
	if strings.Contains(out, "Final failed") {
		t.Error("failed line should be omitted when nothing failed")
	}
	if strings.Contains(out, "Created resources") {
		t.Error("resource list should be omitted when empty")
	}
}
