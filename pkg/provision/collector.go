package provision

// CollectFailures concatenates every batch's failed list, preserving
// relative order across batches: batch 1's failures sort before batch 2's,
// and within a batch the original submission order is kept. Because batches
// are contiguous slices of the ordered input, the output's sequence indices
// are non-decreasing. Pure aggregation, no side effects.
func CollectFailures(results []BatchResult) []WorkItem {
	var failed []WorkItem
	for _, r := range results {
		failed = append(failed, r.Failed...)
	}
	return failed
}

// CollectCreated concatenates every batch's created list in batch order.
// Under retries an item created in a later round sorts after all earlier
// successes; callers that need strict sequence ordering of final resources
// must sort by WorkItem sequence index, not collection order.
func CollectCreated(results []BatchResult) []RemoteResource {
	var created []RemoteResource
	for _, r := range results {
		created = append(created, r.Created...)
	}
	return created
}
