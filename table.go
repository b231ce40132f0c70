package refdb

import (
	"errors"
	"fmt"
	"time"

	"refdb/internal/refname"
)

// Outcome is the tri-state result of a reference operation: a conditional
// no-op is distinct from both a committed mutation and a failure.
type Outcome int

const (
	// OutcomeFailed means the operation errored and metadata is unchanged.
	OutcomeFailed Outcome = iota
	// OutcomeNoOp means an existence conditional turned the operation into
	// a successful no-op; metadata is unchanged.
	OutcomeNoOp
	// OutcomeApplied means a new metadata version was committed.
	OutcomeApplied
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFailed:
		return "failed"
	case OutcomeNoOp:
		return "noop"
	case OutcomeApplied:
		return "applied"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Table manages the branch and tag references of one snapshot-versioned
// table. All mutation goes through the store's compare-and-swap; reads load
// the latest committed version and never block on in-flight commits.
// A Table is safe for concurrent use.
type Table struct {
	store Store
	c     *committer
	opts  TableOptions
}

// Open wraps a metadata store in a Table handle.
func Open(store Store, options ...TableOption) (*Table, error) {
	if store == nil {
		return nil, errors.New("refdb: nil store")
	}

	opts := DefaultTableOptions()
	for _, opt := range options {
		opt(&opts)
	}

	return &Table{
		store: store,
		c:     newCommitter(store, opts.maxCommitRetries, opts.logger),
		opts:  opts,
	}, nil
}

// RefOption configures one reference operation, mirroring the DDL clauses
// (AS OF VERSION, RETAIN, WITH SNAPSHOT RETENTION, IF [NOT] EXISTS).
type RefOption func(*refOptions)

type refOptions struct {
	snapshotID  *int64
	ifExists    bool
	ifNotExists bool
	ret         retention
}

func collectRefOptions(options []RefOption) refOptions {
	var ro refOptions
	for _, opt := range options {
		opt(&ro)
	}
	return ro
}

// WithSnapshotID pins the operation to an explicit target snapshot instead
// of the current main snapshot.
func WithSnapshotID(id int64) RefOption {
	return func(ro *refOptions) {
		ro.snapshotID = &id
	}
}

// WithIfExists makes drop a no-op instead of ErrRefNotFound when the name is
// absent.
func WithIfExists() RefOption {
	return func(ro *refOptions) {
		ro.ifExists = true
	}
}

// WithIfNotExists makes create a no-op instead of ErrRefAlreadyExists when
// the name is present.
func WithIfNotExists() RefOption {
	return func(ro *refOptions) {
		ro.ifNotExists = true
	}
}

// WithRetain bounds the lifetime of the reference itself.
func WithRetain(n int64, u Unit) RefOption {
	return func(ro *refOptions) {
		ms := u.Millis(n)
		ro.ret.maxRefAgeMs = &ms
	}
}

// WithMinSnapshotsToKeep sets the branch's snapshot-count retention floor.
func WithMinSnapshotsToKeep(n int) RefOption {
	return func(ro *refOptions) {
		ro.ret.minSnapshotsToKeep = &n
	}
}

// WithMaxSnapshotAge bounds the age of snapshots retained for the branch.
func WithMaxSnapshotAge(n int64, u Unit) RefOption {
	return func(ro *refOptions) {
		ms := u.Millis(n)
		ro.ret.maxSnapshotAgeMs = &ms
	}
}

// CreateBranch creates a movable branch reference. Without WithSnapshotID it
// targets the current main snapshot; on an empty table that fails with
// ErrNoSnapshotAvailable.
func (t *Table) CreateBranch(name string, options ...RefOption) (Outcome, error) {
	return t.create(name, KindBranch, collectRefOptions(options))
}

// CreateTag creates an immutable tag alias for a snapshot. Tags accept only
// WithRetain; snapshot retention is a branch concern.
func (t *Table) CreateTag(name string, options ...RefOption) (Outcome, error) {
	return t.create(name, KindTag, collectRefOptions(options))
}

func (t *Table) create(name string, kind Kind, ro refOptions) (Outcome, error) {
	if err := refname.Validate(name); err != nil {
		return OutcomeFailed, err
	}
	if err := ro.ret.validate(kind); err != nil {
		return OutcomeFailed, err
	}

	return t.run(func(base *Version) (*Version, error) {
		if _, ok := base.Ref(name); ok {
			if ro.ifNotExists {
				return base, nil
			}
			return nil, fmt.Errorf("%w: %s", ErrRefAlreadyExists, name)
		}

		target, err := resolveTarget(base, ro.snapshotID)
		if err != nil {
			return nil, err
		}

		ref := Ref{name: name, kind: kind, snapshotID: target}
		ref, err = ref.withRetention(ro.ret)
		if err != nil {
			return nil, err
		}

		return base.withRefUpserted(ref), nil
	})
}

// ReplaceBranch moves an existing branch to snapshotID. Retention fields not
// overridden here are preserved from the prior reference. Replacing a tag
// through this path fails with ErrRefTypeMismatch.
func (t *Table) ReplaceBranch(name string, snapshotID int64, options ...RefOption) (Outcome, error) {
	ro := collectRefOptions(options)
	if err := refname.Validate(name); err != nil {
		return OutcomeFailed, err
	}
	if err := ro.ret.validate(KindBranch); err != nil {
		return OutcomeFailed, err
	}

	return t.run(func(base *Version) (*Version, error) {
		existing, ok := base.Ref(name)
		if !ok {
			return nil, fmt.Errorf("%w: branch %s", ErrRefNotFound, name)
		}
		if existing.IsTag() {
			return nil, fmt.Errorf("%w: ref %s is a tag not a branch", ErrRefTypeMismatch, name)
		}
		return replacedBranch(base, existing, snapshotID, ro.ret)
	})
}

// CreateOrReplaceBranch creates the branch if absent, otherwise replaces its
// target; it never fails on existence. The replace path keeps the tag guard
// and the retention merge of ReplaceBranch.
func (t *Table) CreateOrReplaceBranch(name string, options ...RefOption) (Outcome, error) {
	ro := collectRefOptions(options)
	if err := refname.Validate(name); err != nil {
		return OutcomeFailed, err
	}
	if err := ro.ret.validate(KindBranch); err != nil {
		return OutcomeFailed, err
	}

	return t.run(func(base *Version) (*Version, error) {
		target, err := resolveTarget(base, ro.snapshotID)
		if err != nil {
			return nil, err
		}

		existing, ok := base.Ref(name)
		if !ok {
			ref, err := NewBranch(name, target).withRetention(ro.ret)
			if err != nil {
				return nil, err
			}
			return base.withRefUpserted(ref), nil
		}
		if existing.IsTag() {
			return nil, fmt.Errorf("%w: ref %s is a tag not a branch", ErrRefTypeMismatch, name)
		}
		return replacedBranch(base, existing, target, ro.ret)
	})
}

func replacedBranch(base *Version, existing Ref, snapshotID int64, ret retention) (*Version, error) {
	if _, ok := base.SnapshotByID(snapshotID); !ok {
		return nil, fmt.Errorf("%w: %d", ErrSnapshotNotFound, snapshotID)
	}
	updated, err := existing.withSnapshotID(snapshotID).withRetention(ret)
	if err != nil {
		return nil, err
	}
	return base.withRefUpserted(updated), nil
}

// DropBranch removes a branch. main is never removable, even with
// WithIfExists. Dropping a tag through this verb fails with
// ErrRefTypeMismatch.
func (t *Table) DropBranch(name string, options ...RefOption) (Outcome, error) {
	return t.drop(name, KindBranch, collectRefOptions(options))
}

// DropTag removes a tag. The kind check mirrors DropBranch.
func (t *Table) DropTag(name string, options ...RefOption) (Outcome, error) {
	return t.drop(name, KindTag, collectRefOptions(options))
}

func (t *Table) drop(name string, kind Kind, ro refOptions) (Outcome, error) {
	return t.run(func(base *Version) (*Version, error) {
		// The main guard outranks both conditionals and kind checks.
		if name == MainBranch {
			return nil, ErrCannotRemoveMainBranch
		}

		existing, ok := base.Ref(name)
		if !ok {
			if ro.ifExists {
				return base, nil
			}
			return nil, fmt.Errorf("%w: %s %s", ErrRefNotFound, kind, name)
		}
		if existing.kind != kind {
			return nil, fmt.Errorf("%w: ref %s is a %s not a %s",
				ErrRefTypeMismatch, name, existing.kind, kind)
		}

		return base.withRefRemoved(name)
	})
}

// SetMinSnapshotsToKeep changes one retention field of an existing branch,
// leaving the rest untouched.
func (t *Table) SetMinSnapshotsToKeep(name string, n int) (Outcome, error) {
	return t.setRetention(name, retention{minSnapshotsToKeep: &n})
}

// SetMaxSnapshotAgeMs changes one retention field of an existing branch,
// leaving the rest untouched.
func (t *Table) SetMaxSnapshotAgeMs(name string, ms int64) (Outcome, error) {
	return t.setRetention(name, retention{maxSnapshotAgeMs: &ms})
}

// SetMaxRefAgeMs changes the reference's own expiry bound, valid for both
// kinds.
func (t *Table) SetMaxRefAgeMs(name string, ms int64) (Outcome, error) {
	return t.setRetention(name, retention{maxRefAgeMs: &ms})
}

func (t *Table) setRetention(name string, ret retention) (Outcome, error) {
	return t.run(func(base *Version) (*Version, error) {
		existing, ok := base.Ref(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrRefNotFound, name)
		}
		updated, err := existing.withRetention(ret)
		if err != nil {
			return nil, err
		}
		return base.withRefUpserted(updated), nil
	})
}

// AddSnapshot appends one snapshot to the log and advances main, creating
// main on a table's first snapshot. It goes through the same commit path as
// every other mutation.
func (t *Table) AddSnapshot() (Snapshot, error) {
	return t.addSnapshotAt(time.Now().UnixMilli())
}

func (t *Table) addSnapshotAt(tsMs int64) (Snapshot, error) {
	var snap Snapshot
	_, _, err := t.c.commit(func(base *Version) (*Version, error) {
		next, s := base.withSnapshotAppended(tsMs)
		snap = s
		return next, nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// ExpireRefs removes, in one commit, every non-main reference older than its
// effective max ref age: the reference's own maxRefAgeMs, or the table-level
// default when the field is absent, or kept forever when neither is set.
// Age is measured from the referenced snapshot's timestamp. Nothing expired
// is a no-op.
func (t *Table) ExpireRefs(nowMs int64) (Outcome, error) {
	return t.run(func(base *Version) (*Version, error) {
		var expired []string
		for name, ref := range base.Refs() {
			if name == MainBranch {
				continue
			}

			maxAge := t.opts.defaultMaxRefAgeMs
			if ref.maxRefAgeMs != nil {
				maxAge = *ref.maxRefAgeMs
			}
			if maxAge <= 0 {
				continue
			}

			snap, ok := base.SnapshotByID(ref.snapshotID)
			if !ok {
				continue
			}
			if nowMs-snap.TimestampMs > maxAge {
				expired = append(expired, name)
			}
		}

		if len(expired) == 0 {
			return base, nil
		}

		t.opts.logger.Info("expiring references", "count", len(expired))
		return base.withRefsRemoved(expired), nil
	})
}

// ExpireSnapshots removes, in one commit, snapshots no longer retained by
// any reference. Every ref pins the snapshot it points at; a branch
// additionally retains its ancestor chain up to its effective retention:
// minSnapshotsToKeep ancestors always, and older ones only while within
// maxSnapshotAgeMs. Fields absent on the ref fall back to the table-level
// defaults; with no age bound anywhere the branch retains its whole history.
func (t *Table) ExpireSnapshots(nowMs int64) (Outcome, error) {
	return t.run(func(base *Version) (*Version, error) {
		keep := make(map[int64]bool)

		for _, ref := range base.Refs() {
			keep[ref.snapshotID] = true
			if ref.IsTag() {
				continue
			}

			minKeep := t.opts.defaultMinSnapshots
			if ref.minSnapshotsToKeep != nil {
				minKeep = *ref.minSnapshotsToKeep
			}
			maxAge := t.opts.defaultMaxSnapAgeMs
			if ref.maxSnapshotAgeMs != nil {
				maxAge = *ref.maxSnapshotAgeMs
			}

			ordinal := 1
			snap, ok := base.SnapshotByID(ref.snapshotID)
			for ok && snap.ParentID != nil {
				snap, ok = base.SnapshotByID(*snap.ParentID)
				if !ok {
					break
				}
				// Beyond the count floor, only an age bound can cut the
				// chain; an unset bound keeps the branch's whole history.
				if ordinal >= minKeep && maxAge > 0 && nowMs-snap.TimestampMs > maxAge {
					break
				}
				keep[snap.ID] = true
				ordinal++
			}
		}

		if len(keep) == len(base.snapshots) {
			return base, nil
		}

		t.opts.logger.Info("expiring snapshots",
			"kept", len(keep), "removed", len(base.snapshots)-len(keep))
		return base.withSnapshotsRemoved(keep), nil
	})
}

// Version returns the latest committed metadata version.
func (t *Table) Version() (*Version, error) {
	return t.store.LoadLatest()
}

// Refs returns the reference set of the latest committed version.
func (t *Table) Refs() (map[string]Ref, error) {
	v, err := t.store.LoadLatest()
	if err != nil {
		return nil, err
	}
	return v.Refs(), nil
}

// Ref returns one reference from the latest committed version.
func (t *Table) Ref(name string) (Ref, error) {
	v, err := t.store.LoadLatest()
	if err != nil {
		return Ref{}, err
	}
	r, ok := v.Ref(name)
	if !ok {
		return Ref{}, fmt.Errorf("%w: %s", ErrRefNotFound, name)
	}
	return r, nil
}

// CurrentSnapshot returns the snapshot main points at in the latest version.
func (t *Table) CurrentSnapshot() (Snapshot, error) {
	v, err := t.store.LoadLatest()
	if err != nil {
		return Snapshot{}, err
	}
	snap, ok := v.CurrentSnapshot()
	if !ok {
		return Snapshot{}, ErrNoSnapshotAvailable
	}
	return snap, nil
}

// Stats returns this handle's commit-path counters.
func (t *Table) Stats() Stats {
	return t.c.stats()
}

// run funnels a mutator through the commit protocol and folds the result
// into the tri-state outcome.
func (t *Table) run(mutate func(*Version) (*Version, error)) (Outcome, error) {
	_, applied, err := t.c.commit(mutate)
	if err != nil {
		return OutcomeFailed, err
	}
	if !applied {
		return OutcomeNoOp, nil
	}
	return OutcomeApplied, nil
}

// resolveTarget picks the snapshot a create binds to: the explicit target
// when given (and present in the log), otherwise the current main snapshot.
func resolveTarget(base *Version, explicit *int64) (int64, error) {
	if explicit != nil {
		if _, ok := base.SnapshotByID(*explicit); !ok {
			return 0, fmt.Errorf("%w: %d", ErrSnapshotNotFound, *explicit)
		}
		return *explicit, nil
	}

	main, ok := base.Ref(MainBranch)
	if !ok {
		return 0, fmt.Errorf("cannot complete create or replace operation: %w", ErrNoSnapshotAvailable)
	}
	return main.snapshotID, nil
}
