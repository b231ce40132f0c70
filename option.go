package refdb

// TableOptions configures table behavior.
type TableOptions struct {
	maxCommitRetries    int    // Attempts before a conflicting commit gives up.
	defaultMaxRefAgeMs  int64  // Table-level ref expiry default. 0 means keep forever.
	defaultMaxSnapAgeMs int64  // Table-level snapshot-age default used by history expiration. 0 means keep forever.
	defaultMinSnapshots int    // Table-level minimum snapshots kept per branch. 0 means no minimum.
	logger              Logger // Destination for commit/conflict logging.
}

// DefaultTableOptions returns safe default configuration.
func DefaultTableOptions() TableOptions {
	return TableOptions{
		maxCommitRetries: 8,
		logger:           DiscardLogger{},
	}
}

// TableOption configures table options using the functional options pattern.
type TableOption func(*TableOptions)

// WithMaxCommitRetries sets how many times a metadata commit is retried
// against a refreshed base before failing with ErrCommitConflict.
func WithMaxCommitRetries(n int) TableOption {
	return func(opts *TableOptions) {
		if n > 0 {
			opts.maxCommitRetries = n
		}
	}
}

// WithLogger sets the logger used for commit conflict reporting.
// The default discards all output.
func WithLogger(l Logger) TableOption {
	return func(opts *TableOptions) {
		if l != nil {
			opts.logger = l
		}
	}
}

// WithDefaultMaxRefAgeMs sets the table-level reference expiry applied by
// ExpireRefs to references that carry no maxRefAgeMs of their own.
// References never store this value; it is read at expiry time.
func WithDefaultMaxRefAgeMs(ms int64) TableOption {
	return func(opts *TableOptions) {
		opts.defaultMaxRefAgeMs = ms
	}
}

// WithDefaultSnapshotRetention sets the table-level history-expiration
// defaults for branches that carry no snapshot retention of their own.
func WithDefaultSnapshotRetention(minSnapshots int, maxAgeMs int64) TableOption {
	return func(opts *TableOptions) {
		opts.defaultMinSnapshots = minSnapshots
		opts.defaultMaxSnapAgeMs = maxAgeMs
	}
}
