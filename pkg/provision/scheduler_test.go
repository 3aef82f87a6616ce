package provision

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func makeItems(n int) []WorkItem {
	items := make([]WorkItem, n)
	for i := range items {
		items[i] = WorkItem{SequenceIndex: i, Kind: KindIssue}
	}
	return items
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name      string
		items     int
		size      int
		wantSizes []int
	}{
		{name: "25 items in batches of 10", items: 25, size: 10, wantSizes: []int{10, 10, 5}},
		{name: "exact multiple", items: 20, size: 10, wantSizes: []int{10, 10}},
		{name: "batch larger than input", items: 5, size: 30, wantSizes: []int{5}},
		{name: "size one", items: 3, size: 1, wantSizes: []int{1, 1, 1}},
		{name: "empty input", items: 0, size: 10, wantSizes: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches := partition(makeItems(tt.items), tt.size)

			if len(batches) != len(tt.wantSizes) {
				t.Fatalf("batch count = %d, want %d", len(batches), len(tt.wantSizes))
			}
			for i, want := range tt.wantSizes {
				if len(batches[i]) != want {
					t.Errorf("batch %d size = %d, want %d", i, len(batches[i]), want)
				}
			}

			// Concatenation reconstructs the input in order.
			seq := 0
			for _, batch := range batches {
				for _, item := range batch {
					if item.SequenceIndex != seq {
						t.Fatalf("item at position %d has sequence %d", seq, item.SequenceIndex)
					}
					seq++
				}
			}
			if seq != tt.items {
				t.Errorf("reconstructed %d items, want %d", seq, tt.items)
			}
		})
	}
}

func newTestScheduler(creator Creator, batchSize int, pause time.Duration, sleeps *[]time.Duration) *BatchScheduler {
	pacer := &fakePacer{}
	submitter := NewSubmitter(creator, pacer, DefaultBackoffPolicy(time.Second), 1, zerolog.Nop())
	submitter.SetSleep(recordSleeps(sleeps))
	scheduler := NewBatchScheduler(submitter, batchSize, pause, zerolog.Nop())
	scheduler.SetSleep(recordSleeps(sleeps))
	return scheduler
}

// 25 items, batch size 10, everything succeeds first try: three batches,
// nothing in the failure lists, two inter-batch pauses.
func TestBatchScheduler_AllSucceed(t *testing.T) {
	creator := &scriptedCreator{script: []scripted{{status: 201, body: createdBody(1)}}}
	var sleeps []time.Duration
	scheduler := newTestScheduler(creator, 10, 15*time.Second, &sleeps)

	results := scheduler.Run(context.Background(), makeItems(25))

	if len(results) != 3 {
		t.Fatalf("batch count = %d, want 3", len(results))
	}
	for i, want := range []int{10, 10, 5} {
		if len(results[i].Created) != want {
			t.Errorf("batch %d created = %d, want %d", i, len(results[i].Created), want)
		}
		if len(results[i].Failed) != 0 {
			t.Errorf("batch %d failed = %d, want 0", i, len(results[i].Failed))
		}
	}
	if failed := CollectFailures(results); len(failed) != 0 {
		t.Errorf("collected failures = %d, want 0", len(failed))
	}
	if len(sleeps) != 2 {
		t.Errorf("pause count = %d, want 2 (no pause after the last batch)", len(sleeps))
	}
}

// A single batch larger than the input runs without any inter-batch pause.
func TestBatchScheduler_SingleBatchNoPause(t *testing.T) {
	creator := &scriptedCreator{script: []scripted{{status: 201, body: createdBody(1)}}}
	var sleeps []time.Duration
	scheduler := newTestScheduler(creator, 50, 15*time.Second, &sleeps)

	results := scheduler.Run(context.Background(), makeItems(8))

	if len(results) != 1 {
		t.Fatalf("batch count = %d, want 1", len(results))
	}
	if len(sleeps) != 0 {
		t.Errorf("pause count = %d, want 0", len(sleeps))
	}
}

func TestBatchScheduler_EmptyInput(t *testing.T) {
	creator := &scriptedCreator{script: []scripted{{status: 201, body: createdBody(1)}}}
	var sleeps []time.Duration
	scheduler := newTestScheduler(creator, 10, time.Second, &sleeps)

	results := scheduler.Run(context.Background(), nil)

	if len(results) != 0 {
		t.Errorf("batch count = %d, want 0", len(results))
	}
	if creator.calls != 0 {
		t.Errorf("creator calls = %d, want 0", creator.calls)
	}
}

// Every batch partitions its input exactly: |created| + |failed| equals the
// batch size, and a fully failing batch completes normally.
func TestBatchScheduler_PartitionProperty(t *testing.T) {
	// Alternate 201 / 422 so each batch has a mix.
	script := make([]scripted, 0, 20)
	for i := 0; i < 10; i++ {
		script = append(script,
			scripted{status: 201, body: createdBody(int64(i))},
			scripted{status: 422, body: `{"message": "Validation Failed"}`},
		)
	}
	creator := &scriptedCreator{script: script}
	var sleeps []time.Duration
	scheduler := newTestScheduler(creator, 7, 0, &sleeps)

	items := makeItems(20)
	results := scheduler.Run(context.Background(), items)

	total := 0
	for i, r := range results {
		batchLen := 7
		if i == len(results)-1 {
			batchLen = 6
		}
		if got := len(r.Created) + len(r.Failed); got != batchLen {
			t.Errorf("batch %d: created+failed = %d, want %d", i, got, batchLen)
		}
		total += len(r.Created) + len(r.Failed)
	}
	if total != len(items) {
		t.Errorf("total accounted = %d, want %d", total, len(items))
	}
}

func TestBatchScheduler_AllFailStillCompletes(t *testing.T) {
	creator := &scriptedCreator{script: []scripted{{status: 422}}}
	var sleeps []time.Duration
	scheduler := newTestScheduler(creator, 5, 0, &sleeps)

	results := scheduler.Run(context.Background(), makeItems(10))

	failed := CollectFailures(results)
	if len(failed) != 10 {
		t.Errorf("failed = %d, want 10", len(failed))
	}
	if created := CollectCreated(results); len(created) != 0 {
		t.Errorf("created = %d, want 0", len(created))
	}
}
