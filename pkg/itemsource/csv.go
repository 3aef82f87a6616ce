// Package itemsource loads work items from CSV files. Rows become numbered,
// labelled create-issue payloads; the sequence index every downstream
// ordering guarantee rests on is assigned here, once, in file order.
package itemsource

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/akachiryo/github-provisioner/pkg/provision"
)

// Spec describes one CSV file of items.
type Spec struct {
	// Path is the CSV file location. Missing files are skipped: the
	// provisioning job runs with whichever inputs the repository carries.
	Path string

	// Kind is the resource kind for every row in the file.
	Kind provision.Kind

	// TitlePrefix, when set, renumbers titles as "<prefix><NNN>: <title>".
	// An existing "<prefix><digits>:" lead-in is stripped first so reruns
	// do not stack numbers.
	TitlePrefix string

	// DefaultLabels are merged into every row's labels.
	DefaultLabels []string
}

// payload is the create-issue request body.
type payload struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels"`
}

// Load reads all specs in order and returns the combined ordered item
// list. Sequence indices are global across specs and never reassigned.
func Load(specs []Spec) ([]provision.WorkItem, error) {
	var items []provision.WorkItem
	seq := 0

	for _, spec := range specs {
		rows, err := readRows(spec.Path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", spec.Path, err)
		}

		number := 1
		for _, row := range rows {
			title := strings.TrimSpace(row["title"])
			if title == "" {
				continue
			}

			item, err := buildItem(spec, row, title, seq, number)
			if err != nil {
				return nil, fmt.Errorf("row %d of %s: %w", number, spec.Path, err)
			}
			items = append(items, item)
			seq++
			number++
		}
	}

	return items, nil
}

// readRows reads a CSV file into header-keyed maps. A missing file yields
// no rows and no error.
func readRows(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var rows []map[string]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}

		row := make(map[string]string, len(header))
		for i, key := range header {
			if i < len(record) {
				row[strings.TrimSpace(key)] = record[i]
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func buildItem(spec Spec, row map[string]string, title string, seq, number int) (provision.WorkItem, error) {
	numbered := numberTitle(spec.TitlePrefix, title, number)

	labels := splitLabels(row["labels"])
	labels = mergeLabels(labels, spec.DefaultLabels)
	if difficulty := strings.TrimSpace(row["difficulty"]); difficulty != "" {
		labels = mergeLabels(labels, []string{difficulty})
	}

	body, err := json.Marshal(payload{
		Title:  numbered,
		Body:   strings.TrimSpace(row["body"]),
		Labels: labels,
	})
	if err != nil {
		return provision.WorkItem{}, fmt.Errorf("marshal payload: %w", err)
	}

	return provision.WorkItem{
		SequenceIndex: seq,
		Kind:          spec.Kind,
		Title:         numbered,
		Payload:       body,
	}, nil
}

// numberTitle renumbers a title as "<prefix><NNN>: <rest>", stripping any
// numbering a previous run already applied.
func numberTitle(prefix, title string, number int) string {
	if prefix == "" {
		return title
	}
	if strings.HasPrefix(title, prefix) {
		re := regexp.MustCompile("^" + regexp.QuoteMeta(prefix) + `[\d\s:.]*`)
		if rest := strings.TrimSpace(re.ReplaceAllString(title, "")); rest != "" {
			title = rest
		}
	}
	return fmt.Sprintf("%s%03d: %s", prefix, number, title)
}

// splitLabels parses a comma-separated label cell, tolerating the quoted
// form spreadsheet exports produce.
func splitLabels(cell string) []string {
	cell = strings.TrimSpace(cell)
	if strings.HasPrefix(cell, `"`) && strings.HasSuffix(cell, `"`) && len(cell) >= 2 {
		cell = cell[1 : len(cell)-1]
	}

	var labels []string
	for _, part := range strings.Split(cell, ",") {
		if part = strings.TrimSpace(part); part != "" {
			labels = append(labels, part)
		}
	}
	return labels
}

// mergeLabels appends extras not already present, preserving order.
func mergeLabels(labels, extras []string) []string {
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		seen[l] = true
	}
	for _, e := range extras {
		if !seen[e] {
			labels = append(labels, e)
			seen[e] = true
		}
	}
	return labels
}
