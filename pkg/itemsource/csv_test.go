package itemsource

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/akachiryo/github-provisioner/pkg/provision"
)

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestLoad_NumbersAndLabels(t *testing.T) {
	path := writeCSV(t, "tasks.csv",
		"title,body,labels,difficulty\n"+
			"set up repo,clone and init,\"infra,setup\",easy\n"+
			"write parser,,parser,hard\n")

	items, err := Load([]Spec{{
		Path:        path,
		Kind:        provision.KindIssue,
		TitlePrefix: "Task ",
	}})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].Title != "Task 001: set up repo" {
		t.Errorf("title = %q, want Task 001: set up repo", items[0].Title)
	}
	if items[1].Title != "Task 002: write parser" {
		t.Errorf("title = %q, want Task 002: write parser", items[1].Title)
	}

	var p struct {
		Title  string   `json:"title"`
		Body   string   `json:"body"`
		Labels []string `json:"labels"`
	}
	if err := json.Unmarshal(items[0].Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.Body != "clone and init" {
		t.Errorf("body = %q", p.Body)
	}
	// CSV labels plus difficulty, deduplicated, order preserved.
	want := []string{"infra", "setup", "easy"}
	if len(p.Labels) != len(want) {
		t.Fatalf("labels = %v, want %v", p.Labels, want)
	}
	for i := range want {
		if p.Labels[i] != want[i] {
			t.Errorf("labels = %v, want %v", p.Labels, want)
			break
		}
	}
}

func TestLoad_StripsExistingNumbering(t *testing.T) {
	path := writeCSV(t, "tasks.csv",
		"title,body\n"+
			"Task 007: set up repo,x\n")

	items, err := Load([]Spec{{Path: path, Kind: provision.KindIssue, TitlePrefix: "Task "}})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if items[0].Title != "Task 001: set up repo" {
		t.Errorf("title = %q, want renumbered Task 001: set up repo", items[0].Title)
	}
}

func TestLoad_SkipsBlankTitles(t *testing.T) {
	path := writeCSV(t, "tasks.csv",
		"title,body\n"+
			"first,x\n"+
			" ,skipped\n"+
			"second,y\n")

	items, err := Load([]Spec{{Path: path, Kind: provision.KindIssue}})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("items = %d, want 2 (blank title skipped)", len(items))
	}
	if items[0].Title != "first" || items[1].Title != "second" {
		t.Errorf("titles = %q, %q", items[0].Title, items[1].Title)
	}
}

func TestLoad_SequenceGlobalAcrossSpecs(t *testing.T) {
	tasks := writeCSV(t, "tasks.csv", "title\na\nb\n")
	tests := writeCSV(t, "tests.csv", "title\nc\n")

	items, err := Load([]Spec{
		{Path: tasks, Kind: provision.KindIssue},
		{Path: tests, Kind: provision.KindIssue, DefaultLabels: []string{"test", "qa"}},
	})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if len(items) != 3 {
		t.Fatalf("items = %d, want 3", len(items))
	}
	for i, it := range items {
		if it.SequenceIndex != i {
			t.Errorf("items[%d].SequenceIndex = %d, want %d", i, it.SequenceIndex, i)
		}
	}

	var p struct {
		Labels []string `json:"labels"`
	}
	if err := json.Unmarshal(items[2].Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if len(p.Labels) != 2 || p.Labels[0] != "test" || p.Labels[1] != "qa" {
		t.Errorf("labels = %v, want [test qa]", p.Labels)
	}
}

func TestLoad_MissingFileSkipped(t *testing.T) {
	items, err := Load([]Spec{{Path: filepath.Join(t.TempDir(), "absent.csv"), Kind: provision.KindIssue}})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("items = %d, want 0", len(items))
	}
}
