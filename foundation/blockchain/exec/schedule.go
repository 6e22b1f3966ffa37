package exec

// Schedule is an ordered list of batches covering every transaction index
// exactly once. No two transactions in the same batch conflict, and a
// transaction's batch index is strictly greater than every conflicting
// predecessor's batch index. Batches hold indices in ascending order.
type Schedule struct {
	Batches [][]int `json:"batches"`
}

// BuildSchedule turns the ordered access records of a block into a schedule
// of non-conflicting batches.
//
// Transactions are processed in canonical order. Transaction i is assigned
// the smallest batch index strictly greater than the batch of every earlier
// conflicting transaction, or batch 0 when unconstrained. This greedy
// single-pass layering is O(n² · s) for average access-set size s and is
// deterministic: the same ordered input always yields the identical
// schedule, bit for bit, so other nodes can reproduce it for verification.
func BuildSchedule(records []*AccessRecord) Schedule {
	batchOf := make([]int, len(records))

	var batches [][]int
	for i, record := range records {
		batch := 0
		for j := 0; j < i; j++ {
			if batchOf[j] < batch {
				continue
			}
			if Conflicts(records[j], record) {
				batch = batchOf[j] + 1
			}
		}

		batchOf[i] = batch
		if batch == len(batches) {
			batches = append(batches, []int{})
		}
		batches[batch] = append(batches[batch], i)
	}

	return Schedule{Batches: batches}
}

// sequentialSchedule places every transaction alone in its own batch, in
// canonical order. This is the fallback mode with batch size always 1.
func sequentialSchedule(n int) Schedule {
	batches := make([][]int, n)
	for i := 0; i < n; i++ {
		batches[i] = []int{i}
	}
	return Schedule{Batches: batches}
}

// =============================================================================

// TxCount returns the number of transactions covered by the schedule.
func (s Schedule) TxCount() int {
	var n int
	for _, batch := range s.Batches {
		n += len(batch)
	}
	return n
}

// BatchCount returns the number of batches in the schedule.
func (s Schedule) BatchCount() int {
	return len(s.Batches)
}

// AvgBatchSize returns the achieved parallelism of the schedule: the average
// number of transactions per batch. This is an observability export, nothing
// depends on it for correctness.
func (s Schedule) AvgBatchSize() float64 {
	if len(s.Batches) == 0 {
		return 0
	}
	return float64(s.TxCount()) / float64(len(s.Batches))
}
