package refdb

// Snapshot records one committed, immutable state of the dataset. Snapshots
// are only ever referenced or dereferenced by this package, never mutated.
// IDs are assigned monotonically within a table.
type Snapshot struct {
	ID          int64
	ParentID    *int64 // nil for the first snapshot
	TimestampMs int64
}
