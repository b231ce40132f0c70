package refdb

import (
	"fmt"
)

// Operation identifies the DDL intent carried by a Request.
type Operation int

const (
	OpCreate Operation = iota
	OpReplace
	OpCreateOrReplace
	OpDrop
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpReplace:
		return "replace"
	case OpCreateOrReplace:
		return "create or replace"
	case OpDrop:
		return "drop"
	default:
		return fmt.Sprintf("operation(%d)", int(op))
	}
}

// Request is the structured form handed over by the (out-of-scope) DDL
// parsing layer. Age-like retention arrives as a count paired with a
// symbolic unit; units outside the fixed vocabulary are rejected here,
// before the retention validator runs.
type Request struct {
	Operation Operation
	Name      string
	Kind      Kind

	// AS OF VERSION target; nil defaults to the current main snapshot.
	SnapshotID *int64

	// RETAIN <n> <unit>: the reference's own expiry.
	RetainValue *int64
	RetainUnit  string

	// WITH SNAPSHOT RETENTION <n> SNAPSHOTS [<n> <unit>].
	MinSnapshotsToKeep *int
	MaxSnapshotAge     *int64
	MaxSnapshotAgeUnit string

	IfExists    bool
	IfNotExists bool
}

// Apply interprets one structured request as a single reference mutation.
func (t *Table) Apply(req Request) (Outcome, error) {
	if !req.Kind.valid() {
		return OutcomeFailed, fmt.Errorf("%w: %s", ErrInvalidReferenceKind, req.Kind)
	}

	options, err := req.refOptions()
	if err != nil {
		return OutcomeFailed, err
	}

	switch req.Operation {
	case OpCreate:
		if req.Kind == KindTag {
			return t.CreateTag(req.Name, options...)
		}
		return t.CreateBranch(req.Name, options...)

	case OpReplace:
		if req.Kind == KindTag {
			return OutcomeFailed, fmt.Errorf("%w: replace is not supported for tags", ErrRefTypeMismatch)
		}
		if req.SnapshotID == nil {
			return OutcomeFailed, fmt.Errorf("replace branch %s: missing target snapshot id", req.Name)
		}
		return t.ReplaceBranch(req.Name, *req.SnapshotID, options...)

	case OpCreateOrReplace:
		if req.Kind == KindTag {
			return OutcomeFailed, fmt.Errorf("%w: replace is not supported for tags", ErrRefTypeMismatch)
		}
		return t.CreateOrReplaceBranch(req.Name, options...)

	case OpDrop:
		if req.Kind == KindTag {
			return t.DropTag(req.Name, options...)
		}
		return t.DropBranch(req.Name, options...)

	default:
		return OutcomeFailed, fmt.Errorf("unknown operation %s", req.Operation)
	}
}

func (req Request) refOptions() ([]RefOption, error) {
	var options []RefOption

	if req.SnapshotID != nil {
		options = append(options, WithSnapshotID(*req.SnapshotID))
	}
	if req.IfExists {
		options = append(options, WithIfExists())
	}
	if req.IfNotExists {
		options = append(options, WithIfNotExists())
	}

	if req.RetainValue != nil {
		unit, err := ParseUnit(req.RetainUnit)
		if err != nil {
			return nil, err
		}
		options = append(options, WithRetain(*req.RetainValue, unit))
	}
	if req.MinSnapshotsToKeep != nil {
		options = append(options, WithMinSnapshotsToKeep(*req.MinSnapshotsToKeep))
	}
	if req.MaxSnapshotAge != nil {
		unit, err := ParseUnit(req.MaxSnapshotAgeUnit)
		if err != nil {
			return nil, err
		}
		options = append(options, WithMaxSnapshotAge(*req.MaxSnapshotAge, unit))
	}

	return options, nil
}
