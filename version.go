package refdb

import (
	"encoding/binary"
	"fmt"
	"maps"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// Version is one immutable, fully-resolved metadata document: the snapshot
// log plus the reference set, stamped with the owning table's UUID. A
// committed Version is never mutated; derivations copy-on-write and bump the
// version number, which is the compare-and-swap token at the store.
//
// Holding a *Version is a stable snapshot of table state regardless of
// concurrent commits.
type Version struct {
	id        uint64
	tableUUID uuid.UUID
	snapshots []Snapshot
	refs      map[string]Ref
}

func newVersion(tableUUID uuid.UUID) *Version {
	return &Version{
		id:        1,
		tableUUID: tableUUID,
		refs:      make(map[string]Ref),
	}
}

func (v *Version) ID() uint64           { return v.id }
func (v *Version) TableUUID() uuid.UUID { return v.tableUUID }

// Snapshots returns a copy of the append-only snapshot log.
func (v *Version) Snapshots() []Snapshot {
	return slices.Clone(v.snapshots)
}

// SnapshotByID looks up a snapshot in this version's log.
func (v *Version) SnapshotByID(id int64) (Snapshot, bool) {
	for _, s := range v.snapshots {
		if s.ID == id {
			return s, true
		}
	}
	return Snapshot{}, false
}

// CurrentSnapshot returns the snapshot main points at, if any.
func (v *Version) CurrentSnapshot() (Snapshot, bool) {
	main, ok := v.refs[MainBranch]
	if !ok {
		return Snapshot{}, false
	}
	return v.SnapshotByID(main.snapshotID)
}

// Ref looks up one reference by name.
func (v *Version) Ref(name string) (Ref, bool) {
	r, ok := v.refs[name]
	return r, ok
}

// Refs returns a copy of the reference set.
func (v *Version) Refs() map[string]Ref {
	return maps.Clone(v.refs)
}

// clone prepares a successor version: shared snapshot log, copied ref map,
// bumped version number. Callers must not leak the clone before it is fully
// built.
func (v *Version) clone() *Version {
	return &Version{
		id:        v.id + 1,
		tableUUID: v.tableUUID,
		snapshots: v.snapshots,
		refs:      maps.Clone(v.refs),
	}
}

// withRefUpserted derives a version with ref inserted or replaced under its
// name.
func (v *Version) withRefUpserted(r Ref) *Version {
	next := v.clone()
	next.refs[r.name] = r
	return next
}

// withRefRemoved derives a version without the named ref. This is the strict
// store-layer removal: absent names fail with ErrRefNotFound and main is
// never removable, regardless of any caller-side conditionals.
func (v *Version) withRefRemoved(name string) (*Version, error) {
	if name == MainBranch {
		return nil, ErrCannotRemoveMainBranch
	}
	if _, ok := v.refs[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrRefNotFound, name)
	}
	next := v.clone()
	delete(next.refs, name)
	return next, nil
}

// withRefsRemoved derives a single successor version without the named refs.
// Used by the expiry sweep; callers guarantee the names exist and exclude
// main.
func (v *Version) withRefsRemoved(names []string) *Version {
	next := v.clone()
	for _, name := range names {
		delete(next.refs, name)
	}
	return next
}

// withSnapshotsRemoved derives a single successor version whose log keeps
// only the given snapshot ids, preserving order. Callers guarantee every
// referenced snapshot is kept.
func (v *Version) withSnapshotsRemoved(keep map[int64]bool) *Version {
	next := v.clone()
	next.snapshots = make([]Snapshot, 0, len(keep))
	for _, s := range v.snapshots {
		if keep[s.ID] {
			next.snapshots = append(next.snapshots, s)
		}
	}
	return next
}

// withSnapshotAppended derives a version with one new snapshot appended to
// the log and main advanced to it. The first snapshot creates main.
func (v *Version) withSnapshotAppended(tsMs int64) (*Version, Snapshot) {
	snap := Snapshot{ID: 1, TimestampMs: tsMs}
	if n := len(v.snapshots); n > 0 {
		parent := v.snapshots[n-1].ID
		snap.ID = parent + 1
		if main, ok := v.refs[MainBranch]; ok {
			id := main.snapshotID
			snap.ParentID = &id
		}
	}

	next := v.clone()
	next.snapshots = append(slices.Clip(v.snapshots), snap)

	main, ok := next.refs[MainBranch]
	if !ok {
		main = NewBranch(MainBranch, snap.ID)
	} else {
		main = main.withSnapshotID(snap.ID)
	}
	next.refs[MainBranch] = main

	return next, snap
}

// Fingerprint hashes the full metadata content. Equal fingerprints mean
// identical version number, table identity, snapshot log, and reference set.
func (v *Version) Fingerprint() uint64 {
	d := xxhash.New()
	var buf [8]byte

	u64 := func(x uint64) {
		binary.LittleEndian.PutUint64(buf[:], x)
		_, _ = d.Write(buf[:])
	}
	i64 := func(x int64) { u64(uint64(x)) }

	u64(v.id)
	_, _ = d.Write(v.tableUUID[:])

	for _, s := range v.snapshots {
		i64(s.ID)
		i64(s.TimestampMs)
		if s.ParentID != nil {
			i64(*s.ParentID)
		}
	}

	names := slices.Sorted(maps.Keys(v.refs))
	for _, name := range names {
		r := v.refs[name]
		_, _ = d.WriteString(name)
		u64(uint64(r.kind))
		i64(r.snapshotID)
		// Presence bytes keep {unset} and {set to zero} distinct.
		for _, opt := range []*int64{intPtrTo64(r.minSnapshotsToKeep), r.maxSnapshotAgeMs, r.maxRefAgeMs} {
			if opt == nil {
				_, _ = d.Write([]byte{0})
				continue
			}
			_, _ = d.Write([]byte{1})
			i64(*opt)
		}
	}

	return d.Sum64()
}

func intPtrTo64(p *int) *int64 {
	if p == nil {
		return nil
	}
	v := int64(*p)
	return &v
}
