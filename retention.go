package refdb

import (
	"fmt"
	"strings"
)

// Unit is the time-unit vocabulary accepted on the request surface.
// The set is fixed; anything else is rejected before validation.
type Unit int

const (
	Days Unit = iota
	Hours
	Minutes
)

const (
	millisPerMinute = int64(60 * 1000)
	millisPerHour   = 60 * millisPerMinute
	millisPerDay    = 24 * millisPerHour
)

func (u Unit) String() string {
	switch u {
	case Days:
		return "DAYS"
	case Hours:
		return "HOURS"
	case Minutes:
		return "MINUTES"
	default:
		return fmt.Sprintf("unit(%d)", int(u))
	}
}

// Millis converts a count of this unit to milliseconds. Unknown units
// convert to zero, which never survives retention validation.
func (u Unit) Millis(n int64) int64 {
	switch u {
	case Days:
		return n * millisPerDay
	case Hours:
		return n * millisPerHour
	case Minutes:
		return n * millisPerMinute
	default:
		return 0
	}
}

// ParseUnit maps a symbolic unit from the request surface to a Unit.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToUpper(s) {
	case "DAYS":
		return Days, nil
	case "HOURS":
		return Hours, nil
	case "MINUTES":
		return Minutes, nil
	default:
		return 0, fmt.Errorf("%w: unknown time unit %q", ErrInvalidRetentionParameter, s)
	}
}

// retention is a normalized set of retention overrides. A nil field means
// "not supplied": left absent on create, preserved from the prior value on
// replace.
type retention struct {
	minSnapshotsToKeep *int
	maxSnapshotAgeMs   *int64
	maxRefAgeMs        *int64
}

// validate checks the override set against reference-kind rules. Counts and
// ages must be positive; tags support only maxRefAgeMs.
func (ret retention) validate(kind Kind) error {
	if kind == KindTag {
		if ret.minSnapshotsToKeep != nil || ret.maxSnapshotAgeMs != nil {
			return fmt.Errorf("%w: tags do not support snapshot retention", ErrInvalidRetentionParameter)
		}
	}
	if ret.minSnapshotsToKeep != nil && *ret.minSnapshotsToKeep <= 0 {
		return fmt.Errorf("%w: min snapshots to keep must be positive, got %d",
			ErrInvalidRetentionParameter, *ret.minSnapshotsToKeep)
	}
	if ret.maxSnapshotAgeMs != nil && *ret.maxSnapshotAgeMs <= 0 {
		return fmt.Errorf("%w: max snapshot age must be positive, got %dms",
			ErrInvalidRetentionParameter, *ret.maxSnapshotAgeMs)
	}
	if ret.maxRefAgeMs != nil && *ret.maxRefAgeMs <= 0 {
		return fmt.Errorf("%w: max ref age must be positive, got %dms",
			ErrInvalidRetentionParameter, *ret.maxRefAgeMs)
	}
	return nil
}
