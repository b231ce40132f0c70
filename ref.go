package refdb

import "fmt"

// MainBranch is the distinguished branch present on every table that has at
// least one snapshot. It is the default read/write target and cannot be
// dropped.
const MainBranch = "main"

// Kind identifies whether a reference is a movable branch or a fixed tag.
// The dichotomy is closed; there is no third kind.
type Kind int

const (
	KindBranch Kind = iota
	KindTag
)

func (k Kind) String() string {
	switch k {
	case KindBranch:
		return "branch"
	case KindTag:
		return "tag"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) valid() bool {
	return k == KindBranch || k == KindTag
}

// Ref is one named pointer into the snapshot log plus its retention
// configuration. Refs are immutable values; every mutation produces a copy.
//
// Retention fields are nil when unset. Unset means "inherit the table-level
// default at expiry time" and is never replaced with a numeric default in
// the stored reference.
type Ref struct {
	name               string
	kind               Kind
	snapshotID         int64
	minSnapshotsToKeep *int
	maxSnapshotAgeMs   *int64
	maxRefAgeMs        *int64
}

// NewBranch returns a branch reference pointing at snapshotID with no
// retention configured.
func NewBranch(name string, snapshotID int64) Ref {
	return Ref{name: name, kind: KindBranch, snapshotID: snapshotID}
}

// NewTag returns a tag reference pinning snapshotID with no retention
// configured.
func NewTag(name string, snapshotID int64) Ref {
	return Ref{name: name, kind: KindTag, snapshotID: snapshotID}
}

func (r Ref) Name() string      { return r.name }
func (r Ref) Kind() Kind        { return r.kind }
func (r Ref) SnapshotID() int64 { return r.snapshotID }

func (r Ref) IsBranch() bool { return r.kind == KindBranch }
func (r Ref) IsTag() bool    { return r.kind == KindTag }

// MinSnapshotsToKeep returns the branch's snapshot-count retention floor,
// or nil when the table default applies. Always nil for tags.
func (r Ref) MinSnapshotsToKeep() *int { return r.minSnapshotsToKeep }

// MaxSnapshotAgeMs returns the branch's snapshot-age retention bound,
// or nil when the table default applies. Always nil for tags.
func (r Ref) MaxSnapshotAgeMs() *int64 { return r.maxSnapshotAgeMs }

// MaxRefAgeMs returns the reference's own expiry bound, or nil when the
// table default applies.
func (r Ref) MaxRefAgeMs() *int64 { return r.maxRefAgeMs }

// Equal reports whether two refs match on every field, comparing retention
// by value rather than pointer identity.
func (r Ref) Equal(other Ref) bool {
	return r.name == other.name &&
		r.kind == other.kind &&
		r.snapshotID == other.snapshotID &&
		eqIntPtr(r.minSnapshotsToKeep, other.minSnapshotsToKeep) &&
		eqInt64Ptr(r.maxSnapshotAgeMs, other.maxSnapshotAgeMs) &&
		eqInt64Ptr(r.maxRefAgeMs, other.maxRefAgeMs)
}

// withSnapshotID moves the pointer, leaving retention untouched.
func (r Ref) withSnapshotID(id int64) Ref {
	r.snapshotID = id
	return r
}

// withRetention overlays the supplied override set on the receiver.
// Fields absent from the overrides keep the receiver's values, so a replace
// is a merge on retention, not a reset. Branch-only fields on a tag fail
// with ErrInvalidRetentionParameter.
func (r Ref) withRetention(ret retention) (Ref, error) {
	if err := ret.validate(r.kind); err != nil {
		return Ref{}, err
	}
	if ret.minSnapshotsToKeep != nil {
		n := *ret.minSnapshotsToKeep
		r.minSnapshotsToKeep = &n
	}
	if ret.maxSnapshotAgeMs != nil {
		ms := *ret.maxSnapshotAgeMs
		r.maxSnapshotAgeMs = &ms
	}
	if ret.maxRefAgeMs != nil {
		ms := *ret.maxRefAgeMs
		r.maxRefAgeMs = &ms
	}
	return r, nil
}

func eqIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
