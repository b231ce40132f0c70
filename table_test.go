package refdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper to create a table backed by a fresh in-memory store
func setup(t *testing.T, options ...TableOption) *Table {
	t.Helper()
	tbl, err := Open(NewMemStore(), options...)
	require.NoError(t, err, "Failed to open table")
	return tbl
}

func setupWithSnapshot(t *testing.T, options ...TableOption) (*Table, Snapshot) {
	t.Helper()
	tbl := setup(t, options...)
	snap, err := tbl.AddSnapshot()
	require.NoError(t, err, "Failed to append snapshot")
	return tbl, snap
}

func TestCreateBranch(t *testing.T) {
	t.Parallel()

	tbl, snap := setupWithSnapshot(t)

	minSnapshotsToKeep := 2
	maxSnapshotAge := int64(2)
	maxRefAge := int64(10)
	for _, unit := range timeUnits {
		branchName := "b1" + unit.String()
		outcome, err := tbl.CreateBranch(branchName,
			WithSnapshotID(snap.ID),
			WithRetain(maxRefAge, unit),
			WithMinSnapshotsToKeep(minSnapshotsToKeep),
			WithMaxSnapshotAge(maxSnapshotAge, unit),
		)
		require.NoError(t, err)
		assert.Equal(t, OutcomeApplied, outcome)

		ref, err := tbl.Ref(branchName)
		require.NoError(t, err)
		assert.Equal(t, snap.ID, ref.SnapshotID())
		require.NotNil(t, ref.MinSnapshotsToKeep())
		assert.Equal(t, minSnapshotsToKeep, *ref.MinSnapshotsToKeep())
		require.NotNil(t, ref.MaxSnapshotAgeMs())
		assert.Equal(t, unit.Millis(maxSnapshotAge), *ref.MaxSnapshotAgeMs())
		require.NotNil(t, ref.MaxRefAgeMs())
		assert.Equal(t, unit.Millis(maxRefAge), *ref.MaxRefAgeMs())
	}
}

func TestCreateBranchOnEmptyTable(t *testing.T) {
	t.Parallel()

	tbl := setup(t)

	outcome, err := tbl.CreateBranch("b1")
	require.ErrorIs(t, err, ErrNoSnapshotAvailable)
	assert.Equal(t, OutcomeFailed, outcome)
}

func TestCreateBranchUseDefaultConfig(t *testing.T) {
	t.Parallel()

	tbl, snap := setupWithSnapshot(t)

	outcome, err := tbl.CreateBranch("b1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	// Retention stays absent: the table-level default applies at expiry
	// time and is never baked into the stored ref.
	ref, err := tbl.Ref("b1")
	require.NoError(t, err)
	assert.Equal(t, snap.ID, ref.SnapshotID())
	assert.Nil(t, ref.MinSnapshotsToKeep())
	assert.Nil(t, ref.MaxSnapshotAgeMs())
	assert.Nil(t, ref.MaxRefAgeMs())
}

func TestCreateBranchIfNotExists(t *testing.T) {
	t.Parallel()

	tbl, snap := setupWithSnapshot(t)

	_, err := tbl.CreateBranch("b1", WithMaxSnapshotAge(2, Days))
	require.NoError(t, err)

	_, err = tbl.CreateBranch("b1")
	require.ErrorIs(t, err, ErrRefAlreadyExists)

	before, err := tbl.Version()
	require.NoError(t, err)

	outcome, err := tbl.CreateBranch("b1", WithIfNotExists())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoOp, outcome)

	after, err := tbl.Version()
	require.NoError(t, err)
	assert.Equal(t, before.Fingerprint(), after.Fingerprint(), "no-op must not commit")

	ref, err := tbl.Ref("b1")
	require.NoError(t, err)
	assert.Equal(t, snap.ID, ref.SnapshotID())
	assert.Nil(t, ref.MinSnapshotsToKeep())
	require.NotNil(t, ref.MaxSnapshotAgeMs())
	assert.Equal(t, Days.Millis(2), *ref.MaxSnapshotAgeMs())
	assert.Nil(t, ref.MaxRefAgeMs())
}

func TestCreateBranchAtExplicitSnapshot(t *testing.T) {
	t.Parallel()

	tbl, first := setupWithSnapshot(t)
	_, err := tbl.AddSnapshot()
	require.NoError(t, err)

	_, err = tbl.CreateBranch("b1", WithSnapshotID(first.ID))
	require.NoError(t, err)

	ref, err := tbl.Ref("b1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, ref.SnapshotID())
}

func TestCreateBranchUnknownSnapshot(t *testing.T) {
	t.Parallel()

	tbl, _ := setupWithSnapshot(t)

	_, err := tbl.CreateBranch("b1", WithSnapshotID(999))
	require.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestCreateBranchInvalidName(t *testing.T) {
	t.Parallel()

	tbl, _ := setupWithSnapshot(t)

	for _, name := range []string{"", "123", "b 1", "tag"} {
		_, err := tbl.CreateBranch(name)
		require.ErrorIs(t, err, ErrInvalidReferenceName, "name %q", name)
	}
}

func TestCreateTag(t *testing.T) {
	t.Parallel()

	tbl, snap := setupWithSnapshot(t)

	outcome, err := tbl.CreateTag("t1", WithRetain(10, Days))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	ref, err := tbl.Ref("t1")
	require.NoError(t, err)
	assert.True(t, ref.IsTag())
	assert.Equal(t, snap.ID, ref.SnapshotID())
	require.NotNil(t, ref.MaxRefAgeMs())
	assert.Equal(t, Days.Millis(10), *ref.MaxRefAgeMs())
}

func TestCreateTagRejectsSnapshotRetention(t *testing.T) {
	t.Parallel()

	tbl, _ := setupWithSnapshot(t)

	_, err := tbl.CreateTag("t1", WithMinSnapshotsToKeep(2))
	require.ErrorIs(t, err, ErrInvalidRetentionParameter)

	_, err = tbl.CreateTag("t1", WithMaxSnapshotAge(2, Days))
	require.ErrorIs(t, err, ErrInvalidRetentionParameter)
}

func TestReplaceBranch(t *testing.T) {
	t.Parallel()

	tbl, first := setupWithSnapshot(t)

	_, err := tbl.CreateBranch("b1",
		WithSnapshotID(first.ID),
		WithRetain(1000, Minutes),
		WithMinSnapshotsToKeep(2),
		WithMaxSnapshotAge(1000, Minutes),
	)
	require.NoError(t, err)

	second, err := tbl.AddSnapshot()
	require.NoError(t, err)

	outcome, err := tbl.ReplaceBranch("b1", second.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	// Replace is a merge on retention: everything not overridden is
	// preserved from the prior value.
	ref, err := tbl.Ref("b1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, ref.SnapshotID())
	require.NotNil(t, ref.MinSnapshotsToKeep())
	assert.Equal(t, 2, *ref.MinSnapshotsToKeep())
	require.NotNil(t, ref.MaxSnapshotAgeMs())
	assert.Equal(t, Minutes.Millis(1000), *ref.MaxSnapshotAgeMs())
	require.NotNil(t, ref.MaxRefAgeMs())
	assert.Equal(t, Minutes.Millis(1000), *ref.MaxRefAgeMs())
}

func TestReplaceBranchWithRetain(t *testing.T) {
	t.Parallel()

	tbl, first := setupWithSnapshot(t)
	_, err := tbl.CreateBranch("b1", WithSnapshotID(first.ID))
	require.NoError(t, err)
	second, err := tbl.AddSnapshot()
	require.NoError(t, err)

	maxRefAge := int64(10)
	for _, unit := range timeUnits {
		_, err := tbl.ReplaceBranch("b1", second.ID, WithRetain(maxRefAge, unit))
		require.NoError(t, err)

		ref, err := tbl.Ref("b1")
		require.NoError(t, err)
		assert.Equal(t, second.ID, ref.SnapshotID())
		assert.Nil(t, ref.MinSnapshotsToKeep())
		assert.Nil(t, ref.MaxSnapshotAgeMs())
		require.NotNil(t, ref.MaxRefAgeMs())
		assert.Equal(t, unit.Millis(maxRefAge), *ref.MaxRefAgeMs())
	}
}

func TestReplaceBranchDoesNotExist(t *testing.T) {
	t.Parallel()

	tbl, snap := setupWithSnapshot(t)

	_, err := tbl.ReplaceBranch("someBranch", snap.ID)
	require.ErrorIs(t, err, ErrRefNotFound)
}

func TestReplaceBranchFailsForTag(t *testing.T) {
	t.Parallel()

	tbl, first := setupWithSnapshot(t)
	_, err := tbl.CreateTag("tag1", WithSnapshotID(first.ID))
	require.NoError(t, err)
	second, err := tbl.AddSnapshot()
	require.NoError(t, err)

	_, err = tbl.ReplaceBranch("tag1", second.ID)
	require.ErrorIs(t, err, ErrRefTypeMismatch)

	// The stored tag is unchanged.
	ref, err := tbl.Ref("tag1")
	require.NoError(t, err)
	assert.True(t, ref.IsTag())
	assert.Equal(t, first.ID, ref.SnapshotID())
}

func TestReplaceBranchUnknownSnapshot(t *testing.T) {
	t.Parallel()

	tbl, _ := setupWithSnapshot(t)
	_, err := tbl.CreateBranch("b1")
	require.NoError(t, err)

	_, err = tbl.ReplaceBranch("b1", 999)
	require.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestCreateOrReplace(t *testing.T) {
	t.Parallel()

	tbl, first := setupWithSnapshot(t)
	second, err := tbl.AddSnapshot()
	require.NoError(t, err)

	outcome, err := tbl.CreateOrReplaceBranch("b1", WithSnapshotID(second.ID))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	outcome, err = tbl.CreateOrReplaceBranch("b1", WithSnapshotID(first.ID))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	ref, err := tbl.Ref("b1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, ref.SnapshotID())
}

func TestCreateOrReplaceDefaultsToMain(t *testing.T) {
	t.Parallel()

	tbl, snap := setupWithSnapshot(t)

	_, err := tbl.CreateOrReplaceBranch("b1")
	require.NoError(t, err)

	ref, err := tbl.Ref("b1")
	require.NoError(t, err)
	assert.Equal(t, snap.ID, ref.SnapshotID())
}

func TestCreateOrReplaceFailsForTag(t *testing.T) {
	t.Parallel()

	tbl, snap := setupWithSnapshot(t)
	_, err := tbl.CreateTag("t1")
	require.NoError(t, err)

	_, err = tbl.CreateOrReplaceBranch("t1", WithSnapshotID(snap.ID))
	require.ErrorIs(t, err, ErrRefTypeMismatch)
}

func TestDropBranch(t *testing.T) {
	t.Parallel()

	tbl, _ := setupWithSnapshot(t)
	_, err := tbl.CreateBranch("b1")
	require.NoError(t, err)

	outcome, err := tbl.DropBranch("b1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	_, err = tbl.Ref("b1")
	require.ErrorIs(t, err, ErrRefNotFound)
}

func TestDropBranchDoesNotExist(t *testing.T) {
	t.Parallel()

	tbl, _ := setupWithSnapshot(t)

	outcome, err := tbl.DropBranch("nonExistingBranch")
	require.ErrorIs(t, err, ErrRefNotFound)
	assert.Equal(t, OutcomeFailed, outcome)
}

func TestDropBranchIfExists(t *testing.T) {
	t.Parallel()

	tbl, _ := setupWithSnapshot(t)

	before, err := tbl.Version()
	require.NoError(t, err)

	outcome, err := tbl.DropBranch("nonExistingBranch", WithIfExists())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoOp, outcome)

	after, err := tbl.Version()
	require.NoError(t, err)
	assert.Equal(t, before.Fingerprint(), after.Fingerprint())
}

func TestDropBranchFailsForTag(t *testing.T) {
	t.Parallel()

	tbl, _ := setupWithSnapshot(t)
	_, err := tbl.CreateTag("b1")
	require.NoError(t, err)

	_, err = tbl.DropBranch("b1")
	require.ErrorIs(t, err, ErrRefTypeMismatch)

	// WithIfExists excuses absence, not a present wrong-kind ref.
	_, err = tbl.DropBranch("b1", WithIfExists())
	require.ErrorIs(t, err, ErrRefTypeMismatch)
}

func TestDropMainBranchFails(t *testing.T) {
	t.Parallel()

	tbl, _ := setupWithSnapshot(t)

	_, err := tbl.DropBranch(MainBranch)
	require.ErrorIs(t, err, ErrCannotRemoveMainBranch)

	_, err = tbl.DropBranch(MainBranch, WithIfExists())
	require.ErrorIs(t, err, ErrCannotRemoveMainBranch)

	// The main guard outranks the kind check on either verb.
	_, err = tbl.DropTag(MainBranch)
	require.ErrorIs(t, err, ErrCannotRemoveMainBranch)
}

func TestDropTag(t *testing.T) {
	t.Parallel()

	tbl, _ := setupWithSnapshot(t)
	_, err := tbl.CreateTag("t1")
	require.NoError(t, err)

	outcome, err := tbl.DropTag("t1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	_, err = tbl.CreateBranch("b1")
	require.NoError(t, err)
	_, err = tbl.DropTag("b1")
	require.ErrorIs(t, err, ErrRefTypeMismatch)

	outcome, err = tbl.DropTag("ghost", WithIfExists())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoOp, outcome)
}

func TestSetRetentionFields(t *testing.T) {
	t.Parallel()

	tbl, _ := setupWithSnapshot(t)
	_, err := tbl.CreateBranch("b1")
	require.NoError(t, err)

	_, err = tbl.SetMinSnapshotsToKeep("b1", 3)
	require.NoError(t, err)
	_, err = tbl.SetMaxSnapshotAgeMs("b1", 50_000)
	require.NoError(t, err)
	_, err = tbl.SetMaxRefAgeMs("b1", 100_000)
	require.NoError(t, err)

	ref, err := tbl.Ref("b1")
	require.NoError(t, err)
	assert.Equal(t, 3, *ref.MinSnapshotsToKeep())
	assert.Equal(t, int64(50_000), *ref.MaxSnapshotAgeMs())
	assert.Equal(t, int64(100_000), *ref.MaxRefAgeMs())

	// Each setter touches only its own field.
	_, err = tbl.SetMinSnapshotsToKeep("b1", 5)
	require.NoError(t, err)
	ref, err = tbl.Ref("b1")
	require.NoError(t, err)
	assert.Equal(t, 5, *ref.MinSnapshotsToKeep())
	assert.Equal(t, int64(50_000), *ref.MaxSnapshotAgeMs())
	assert.Equal(t, int64(100_000), *ref.MaxRefAgeMs())
}

func TestSetRetentionErrors(t *testing.T) {
	t.Parallel()

	tbl, _ := setupWithSnapshot(t)
	_, err := tbl.CreateTag("t1")
	require.NoError(t, err)

	_, err = tbl.SetMinSnapshotsToKeep("ghost", 3)
	require.ErrorIs(t, err, ErrRefNotFound)

	_, err = tbl.SetMinSnapshotsToKeep("t1", 3)
	require.ErrorIs(t, err, ErrInvalidRetentionParameter)

	_, err = tbl.SetMaxSnapshotAgeMs("t1", 1000)
	require.ErrorIs(t, err, ErrInvalidRetentionParameter)

	// Ref expiry is kind-independent.
	_, err = tbl.SetMaxRefAgeMs("t1", 1000)
	require.NoError(t, err)

	_, err = tbl.SetMaxRefAgeMs("t1", 0)
	require.ErrorIs(t, err, ErrInvalidRetentionParameter)
}

// Lifecycle of one branch name across the full command sequence.
func TestBranchLifecycle(t *testing.T) {
	t.Parallel()

	tbl := setup(t)

	_, err := tbl.CreateBranch("b1")
	require.ErrorIs(t, err, ErrNoSnapshotAvailable)

	s1, err := tbl.AddSnapshot()
	require.NoError(t, err)

	_, err = tbl.CreateBranch("b1")
	require.NoError(t, err)
	ref, err := tbl.Ref("b1")
	require.NoError(t, err)
	assert.Equal(t, s1.ID, ref.SnapshotID())
	assert.Nil(t, ref.MinSnapshotsToKeep())
	assert.Nil(t, ref.MaxSnapshotAgeMs())
	assert.Nil(t, ref.MaxRefAgeMs())

	outcome, err := tbl.CreateBranch("b1", WithIfNotExists())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoOp, outcome)
	ref, err = tbl.Ref("b1")
	require.NoError(t, err)
	assert.Equal(t, s1.ID, ref.SnapshotID())

	s2, err := tbl.AddSnapshot()
	require.NoError(t, err)

	_, err = tbl.ReplaceBranch("b1", s2.ID)
	require.NoError(t, err)
	ref, err = tbl.Ref("b1")
	require.NoError(t, err)
	assert.Equal(t, s2.ID, ref.SnapshotID())
	assert.Nil(t, ref.MaxRefAgeMs())

	_, err = tbl.DropBranch("b1")
	require.NoError(t, err)
	_, err = tbl.Ref("b1")
	require.ErrorIs(t, err, ErrRefNotFound)
}

func TestCurrentSnapshot(t *testing.T) {
	t.Parallel()

	tbl := setup(t)

	_, err := tbl.CurrentSnapshot()
	require.ErrorIs(t, err, ErrNoSnapshotAvailable)

	snap, err := tbl.AddSnapshot()
	require.NoError(t, err)

	cur, err := tbl.CurrentSnapshot()
	require.NoError(t, err)
	assert.Equal(t, snap.ID, cur.ID)
}

func TestExpireRefs(t *testing.T) {
	t.Parallel()

	tbl, err := Open(NewMemStore(), WithDefaultMaxRefAgeMs(500))
	require.NoError(t, err)

	_, err = tbl.addSnapshotAt(1000)
	require.NoError(t, err)

	// t1 carries its own bound, longLived overrides the table default,
	// b1 inherits the table default.
	_, err = tbl.CreateTag("t1")
	require.NoError(t, err)
	_, err = tbl.SetMaxRefAgeMs("t1", 100)
	require.NoError(t, err)
	_, err = tbl.CreateBranch("b1")
	require.NoError(t, err)
	_, err = tbl.CreateBranch("longLived")
	require.NoError(t, err)
	_, err = tbl.SetMaxRefAgeMs("longLived", 1_000_000)
	require.NoError(t, err)

	outcome, err := tbl.ExpireRefs(1050)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoOp, outcome, "nothing old enough yet")

	outcome, err = tbl.ExpireRefs(2000)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	refs, err := tbl.Refs()
	require.NoError(t, err)
	assert.NotContains(t, refs, "t1")
	assert.NotContains(t, refs, "b1")
	assert.Contains(t, refs, "longLived")
	assert.Contains(t, refs, MainBranch, "main never expires")
}

func TestExpireRefsKeepsEverythingWithoutBounds(t *testing.T) {
	t.Parallel()

	tbl := setup(t)
	_, err := tbl.addSnapshotAt(1000)
	require.NoError(t, err)
	_, err = tbl.CreateBranch("b1")
	require.NoError(t, err)

	outcome, err := tbl.ExpireRefs(1_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoOp, outcome)
}

func TestExpireSnapshots(t *testing.T) {
	t.Parallel()

	tbl, err := Open(NewMemStore(), WithDefaultSnapshotRetention(1, 500))
	require.NoError(t, err)

	s1, err := tbl.addSnapshotAt(1000)
	require.NoError(t, err)
	s2, err := tbl.addSnapshotAt(2000)
	require.NoError(t, err)
	s3, err := tbl.addSnapshotAt(3000)
	require.NoError(t, err)

	// A tag pins s1 beyond any branch retention.
	_, err = tbl.CreateTag("pin", WithSnapshotID(s1.ID))
	require.NoError(t, err)

	outcome, err := tbl.ExpireSnapshots(3100)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	v, err := tbl.Version()
	require.NoError(t, err)
	_, ok := v.SnapshotByID(s3.ID)
	assert.True(t, ok, "main's head is always retained")
	_, ok = v.SnapshotByID(s2.ID)
	assert.False(t, ok, "s2 is beyond main's age bound and pinned by nothing")
	_, ok = v.SnapshotByID(s1.ID)
	assert.True(t, ok, "s1 is pinned by the tag")
}

func TestExpireSnapshotsNoOpWithoutBounds(t *testing.T) {
	t.Parallel()

	tbl := setup(t)
	_, err := tbl.addSnapshotAt(1000)
	require.NoError(t, err)
	_, err = tbl.addSnapshotAt(2000)
	require.NoError(t, err)

	outcome, err := tbl.ExpireSnapshots(1_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoOp, outcome, "no age bound anywhere keeps the whole chain")
}

func TestOpenRejectsNilStore(t *testing.T) {
	t.Parallel()

	_, err := Open(nil)
	require.Error(t, err)
}
