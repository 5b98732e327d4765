package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FTHTrading/boutique-sub000/pkg/anchor"
	"github.com/FTHTrading/boutique-sub000/pkg/audit"
	"github.com/FTHTrading/boutique-sub000/pkg/gate"
	"github.com/FTHTrading/boutique-sub000/pkg/screening"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func dealSubject(id string) *gate.Subject {
	return &gate.Subject{
		Ref: gate.SubjectRef{Kind: gate.KindDeal, ID: id},
		Deal: &screening.Deal{
			ID:                 id,
			CommodityID:        "wheat",
			OriginCountry:      "FR",
			DestinationCountry: "DE",
			Value:              25_000,
			Currency:           "EUR",
			Incoterm:           "FOB",
			Quantity:           500,
			QuantityUnit:       "mt",
		},
	}
}

func TestSubjectStoreRoundTrip(t *testing.T) {
	db := openTest(t)
	subjects := NewSubjectStore(db)
	ctx := context.Background()

	require.NoError(t, subjects.Put(ctx, dealSubject("d-1")))

	got, err := subjects.Get(ctx, gate.SubjectRef{Kind: gate.KindDeal, ID: "d-1"})
	require.NoError(t, err)
	assert.Equal(t, gate.StatusUnscreened, got.Status)
	require.NotNil(t, got.Deal)
	assert.Equal(t, "wheat", got.Deal.CommodityID)
	assert.Equal(t, 25_000.0, got.Deal.Value)
}

func TestSubjectStoreGetNotFound(t *testing.T) {
	db := openTest(t)
	subjects := NewSubjectStore(db)

	_, err := subjects.Get(context.Background(), gate.SubjectRef{Kind: gate.KindDeal, ID: "missing"})
	assert.ErrorIs(t, err, gate.ErrNotFound)
}

func TestSubjectStoreSetScreenedRefusesApproved(t *testing.T) {
	db := openTest(t)
	subjects := NewSubjectStore(db)
	ctx := context.Background()
	ref := gate.SubjectRef{Kind: gate.KindDeal, ID: "d-1"}

	require.NoError(t, subjects.Put(ctx, dealSubject("d-1")))
	require.NoError(t, subjects.SetScreened(ctx, ref, gate.StatusUnderReview))
	require.NoError(t, subjects.Transition(ctx, ref, gate.StatusUnderReview, gate.StatusApproved))

	err := subjects.SetScreened(ctx, ref, gate.StatusRejected)
	assert.ErrorIs(t, err, gate.ErrPrecondition)

	got, err := subjects.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, gate.StatusApproved, got.Status)
}

func TestSubjectStoreSetScreenedRejectsOtherStatuses(t *testing.T) {
	db := openTest(t)
	subjects := NewSubjectStore(db)

	err := subjects.SetScreened(context.Background(), gate.SubjectRef{Kind: gate.KindDeal, ID: "d-1"}, gate.StatusApproved)
	assert.ErrorIs(t, err, gate.ErrValidation)
}

func TestSubjectStoreTransitionCompareAndSet(t *testing.T) {
	db := openTest(t)
	subjects := NewSubjectStore(db)
	ctx := context.Background()
	ref := gate.SubjectRef{Kind: gate.KindDeal, ID: "d-1"}

	require.NoError(t, subjects.Put(ctx, dealSubject("d-1")))
	require.NoError(t, subjects.SetScreened(ctx, ref, gate.StatusUnderReview))

	require.NoError(t, subjects.Transition(ctx, ref, gate.StatusUnderReview, gate.StatusApproved))

	// The stored status moved on, so the same expectation now fails.
	err := subjects.Transition(ctx, ref, gate.StatusUnderReview, gate.StatusRejected)
	assert.ErrorIs(t, err, gate.ErrPrecondition)

	got, err := subjects.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, gate.StatusApproved, got.Status)
}

func TestFindingStoreAppendKeepsOrderAndDuplicates(t *testing.T) {
	db := openTest(t)
	findings := NewFindingStore(db)
	ctx := context.Background()
	ref := gate.SubjectRef{Kind: gate.KindDeal, ID: "d-1"}

	batch := []screening.Finding{
		{Type: screening.FlagSanctions, Severity: screening.SeverityCritical, Message: "first", BlocksExecution: true},
		{Type: screening.FlagAML, Severity: screening.SeverityHigh, Message: "second", Metadata: map[string]interface{}{"threshold": "100000"}},
	}

	persisted, err := findings.Append(ctx, ref, batch)
	require.NoError(t, err)
	require.Len(t, persisted, 2)
	assert.NotEmpty(t, persisted[0].ID)
	assert.NotEqual(t, persisted[0].ID, persisted[1].ID)

	// A second run appends again rather than deduplicating.
	_, err = findings.Append(ctx, ref, batch)
	require.NoError(t, err)

	all, err := findings.ListBySubject(ctx, ref)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "first", all[0].Message)
	assert.Equal(t, "second", all[1].Message)
	assert.Equal(t, "first", all[2].Message)
	assert.Equal(t, "100000", all[1].Metadata["threshold"])
	assert.True(t, all[0].BlocksExecution)
}

func TestFindingStoreResolveOnce(t *testing.T) {
	db := openTest(t)
	findings := NewFindingStore(db)
	ctx := context.Background()
	ref := gate.SubjectRef{Kind: gate.KindInstrument, ID: "lc-1"}

	persisted, err := findings.Append(ctx, ref, []screening.Finding{
		{Type: screening.FlagFieldMismatch, Severity: screening.SeverityCritical, Message: "amount mismatch", BlocksExecution: true},
	})
	require.NoError(t, err)
	id := persisted[0].ID

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, findings.Resolve(ctx, id, "ops.lee", "amendment received", at))

	got, err := findings.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Resolved)
	assert.Equal(t, "ops.lee", got.ResolvedBy)
	assert.Equal(t, "amendment received", got.ResolutionNotes)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, got.ResolvedAt.Equal(at))
	assert.False(t, got.Blocking())

	err = findings.Resolve(ctx, id, "ops.chen", "changed my mind", at.Add(time.Hour))
	assert.ErrorIs(t, err, gate.ErrPrecondition)

	// First resolution is untouched.
	got, err = findings.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ops.lee", got.ResolvedBy)
	assert.Equal(t, "amendment received", got.ResolutionNotes)
}

func TestFindingStoreResolveMissing(t *testing.T) {
	db := openTest(t)
	findings := NewFindingStore(db)

	err := findings.Resolve(context.Background(), "nope", "ops.lee", "", time.Now())
	assert.ErrorIs(t, err, gate.ErrNotFound)
}

func TestAuditLogChains(t *testing.T) {
	db := openTest(t)
	log := NewAuditLog(db)
	ctx := context.Background()

	first, err := log.Record(ctx, "system", "SCREENED", "deal/d-1", map[string]interface{}{"findings": "2"})
	require.NoError(t, err)
	assert.Empty(t, first.PreviousHash)
	assert.NotEmpty(t, first.EntryHash)

	second, err := log.Record(ctx, "trader.kim", "APPROVED", "deal/d-1", nil)
	require.NoError(t, err)
	assert.Equal(t, first.EntryHash, second.PreviousHash)

	_, err = log.Record(ctx, "system", "SCREENED", "proposal/p-1", nil)
	require.NoError(t, err)

	all, err := log.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.NoError(t, audit.VerifyChain(all))

	bySubject, err := log.BySubject(ctx, "deal/d-1")
	require.NoError(t, err)
	require.Len(t, bySubject, 2)
	assert.Equal(t, "SCREENED", bySubject[0].Action)
	assert.Equal(t, "APPROVED", bySubject[1].Action)
}

func TestAuditLogRereadHashesVerify(t *testing.T) {
	db := openTest(t)
	log := NewAuditLog(db)
	ctx := context.Background()

	_, err := log.Record(ctx, "system", "SCREENED", "deal/d-1", map[string]interface{}{
		"blocking": true,
		"status":   "rejected",
	})
	require.NoError(t, err)

	all, err := log.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	// The hash must survive the metadata JSON round trip.
	recomputed, err := audit.EntryHash(&all[0])
	require.NoError(t, err)
	assert.Equal(t, all[0].EntryHash, recomputed)
}

func TestAnchorStoreUpsert(t *testing.T) {
	db := openTest(t)
	anchors := NewAnchorStore(db)
	ctx := context.Background()

	a := &anchor.Anchor{
		ID:              "anc-1",
		ObjectType:      "deal",
		ObjectID:        "d-1",
		CanonicalHash:   "abc123",
		RequestedChains: []string{"alpha", "beta"},
		Submissions: []anchor.Submission{
			{Chain: "alpha", TxID: "tx-1", Status: anchor.StatusSubmitted},
			{Chain: "beta", Status: anchor.StatusFailed, LastError: "timeout"},
		},
		Status:    anchor.StatusSubmitted,
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, anchors.Save(ctx, a))

	a.Submissions[0].Status = anchor.StatusConfirmed
	a.Submissions[0].Confirmed = true
	require.NoError(t, anchors.Save(ctx, a))

	got, err := anchors.Get(ctx, "anc-1")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.CanonicalHash)
	assert.Equal(t, []string{"alpha", "beta"}, got.RequestedChains)
	require.Len(t, got.Submissions, 2)
	assert.Equal(t, anchor.StatusConfirmed, got.Submissions[0].Status)
	assert.Equal(t, "timeout", got.Submissions[1].LastError)
	assert.True(t, got.CreatedAt.Equal(a.CreatedAt))
}

func TestAnchorStoreGetNotFound(t *testing.T) {
	db := openTest(t)
	anchors := NewAnchorStore(db)

	_, err := anchors.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, gate.ErrNotFound)
}
