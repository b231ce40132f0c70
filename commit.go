package refdb

import (
	"sync/atomic"
)

// Stats reports commit-path counters for one Table handle.
type Stats struct {
	Commits   uint64 // successful compare-and-swap commits
	NoOps     uint64 // operations skipped by an existence conditional
	Conflicts uint64 // compare-and-swap attempts lost to a concurrent commit
}

// committer runs the optimistic-concurrency commit protocol: load the latest
// version, apply a pure mutator, and compare-and-swap the result. On
// conflict the mutator is re-applied against the refreshed base, up to
// maxRetries attempts. All validation lives in the mutator, so every retry
// re-validates against current state.
type committer struct {
	store      Store
	maxRetries int
	logger     Logger

	commits   atomic.Uint64
	noops     atomic.Uint64
	conflicts atomic.Uint64
}

func newCommitter(store Store, maxRetries int, logger Logger) *committer {
	return &committer{
		store:      store,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// commit applies mutate through the protocol. A mutator returning its base
// unchanged signals a no-op: the swap is skipped and applied is false. A
// mutator error is terminal and never retried; only swap conflicts retry.
func (c *committer) commit(mutate func(base *Version) (*Version, error)) (v *Version, applied bool, err error) {
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		base, err := c.store.LoadLatest()
		if err != nil {
			return nil, false, err
		}

		next, err := mutate(base)
		if err != nil {
			return nil, false, err
		}
		if next == base {
			c.noops.Add(1)
			return base, false, nil
		}

		ok, err := c.store.CommitIfCurrent(base, next)
		if err != nil {
			return nil, false, err
		}
		if ok {
			c.commits.Add(1)
			return next, true, nil
		}

		c.conflicts.Add(1)
		c.logger.Warn("metadata commit conflict, retrying",
			"attempt", attempt,
			"base_version", base.ID(),
			"base_fingerprint", base.Fingerprint(),
		)
	}

	c.logger.Error("metadata commit failed", "attempts", c.maxRetries)
	return nil, false, ErrCommitConflict
}

func (c *committer) stats() Stats {
	return Stats{
		Commits:   c.commits.Load(),
		NoOps:     c.noops.Load(),
		Conflicts: c.conflicts.Load(),
	}
}
