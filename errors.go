package refdb

import (
	"errors"

	"refdb/internal/refname"
)

var (
	ErrInvalidReferenceName = refname.ErrInvalidName
	ErrInvalidReferenceKind = errors.New("invalid reference kind")

	ErrNoSnapshotAvailable = errors.New("main has no snapshot")
	ErrSnapshotNotFound    = errors.New("unknown snapshot")

	ErrRefAlreadyExists       = errors.New("ref already exists")
	ErrRefNotFound            = errors.New("ref does not exist")
	ErrRefTypeMismatch        = errors.New("ref kind mismatch")
	ErrCannotRemoveMainBranch = errors.New("cannot remove main branch")

	ErrInvalidRetentionParameter = errors.New("invalid retention parameter")

	ErrCommitConflict = errors.New("commit conflict: retries exhausted")

	ErrTableMismatch = errors.New("metadata belongs to a different table")
)
