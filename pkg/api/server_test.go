package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FTHTrading/boutique-sub000/pkg/anchor"
	"github.com/FTHTrading/boutique-sub000/pkg/gate"
	"github.com/FTHTrading/boutique-sub000/pkg/refdata"
	"github.com/FTHTrading/boutique-sub000/pkg/screening"
	"github.com/FTHTrading/boutique-sub000/pkg/store"
)

type testRef struct{}

func (testRef) Jurisdiction(code string) (*refdata.Jurisdiction, bool) {
	switch code {
	case "DE", "FR":
		return &refdata.Jurisdiction{Code: code, SanctionsTier: refdata.TierNone}, true
	case "SY":
		return &refdata.Jurisdiction{Code: code, SanctionsTier: refdata.TierCritical}, true
	}
	return nil, false
}

func (testRef) Commodity(id string) (*refdata.Commodity, bool) {
	if id == "wheat" {
		return &refdata.Commodity{ID: id, Category: "agri"}, true
	}
	return nil, false
}

func (testRef) CategoryDocuments(string) []string { return nil }

type testEnv struct {
	mux      *http.ServeMux
	auditLog *store.AuditLog
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	subjects := store.NewSubjectStore(db)
	findings := store.NewFindingStore(db)
	auditLog := store.NewAuditLog(db)

	engine := gate.NewEngine(subjects, findings, testRef{})
	engine.SetAuditLog(auditLog)

	anchors := anchor.NewService(store.NewAnchorStore(db))
	anchors.SetAuditLog(auditLog)

	srv := NewServer(engine, subjects, anchors, auditLog)
	return &testEnv{mux: srv.Routes(), auditLog: auditLog}
}

func (e *testEnv) do(t *testing.T, method, path, actor string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if actor != "" {
		req = req.WithContext(WithActor(context.Background(), actor))
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func cleanDeal(id string) *gate.Subject {
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
		},
	}
}

func sanctionedDeal(id string) *gate.Subject {
	s := cleanDeal(id)
	s.Deal.DestinationCountry = "SY"
	return s
}

func TestRegisterAndScreenCleanDeal(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/subjects", "", cleanDeal("d-1"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/subjects/deal/d-1/screen", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status   gate.Status         `json:"status"`
		Findings []screening.Finding `json:"findings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, gate.StatusUnderReview, resp.Status)
}

func TestScreenUnknownSubject(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/subjects/deal/missing/screen", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestApproveRequiresActor(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/subjects", "", cleanDeal("d-1"))
	env.do(t, http.MethodPost, "/api/v1/subjects/deal/d-1/screen", "", nil)

	rec := env.do(t, http.MethodPost, "/api/v1/subjects/deal/d-1/approve", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestApproveHappyPathWritesAudit(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/subjects", "", cleanDeal("d-1"))
	env.do(t, http.MethodPost, "/api/v1/subjects/deal/d-1/screen", "", nil)

	rec := env.do(t, http.MethodPost, "/api/v1/subjects/deal/d-1/approve", "trader.kim",
		map[string]string{"notes": "docs verified"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/subjects/deal/d-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var subject gate.Subject
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &subject))
	assert.Equal(t, gate.StatusApproved, subject.Status)

	rec = env.do(t, http.MethodGet, "/api/v1/subjects/deal/d-1/audit", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "SCREENED", entries[0]["action"])
	assert.Equal(t, "APPROVED", entries[1]["action"])
	assert.Equal(t, "trader.kim", entries[1]["actor"])
}

func TestApproveBlockedSubjectConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/subjects", "", sanctionedDeal("d-2"))
	env.do(t, http.MethodPost, "/api/v1/subjects/deal/d-2/screen", "", nil)

	rec := env.do(t, http.MethodPost, "/api/v1/subjects/deal/d-2/approve", "trader.kim", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/subjects/deal/d-2/clearance", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var clearance map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &clearance))
	assert.False(t, clearance["cleared"])
}

func TestResolveFindingRestoresClearance(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/subjects", "", sanctionedDeal("d-3"))
	env.do(t, http.MethodPost, "/api/v1/subjects/deal/d-3/screen", "", nil)

	rec := env.do(t, http.MethodGet, "/api/v1/subjects/deal/d-3/findings", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var findings []screening.Finding
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &findings))
	require.NotEmpty(t, findings)

	for _, f := range findings {
		if !f.BlocksExecution {
			continue
		}
		rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/findings/%s/resolve", f.ID),
			"compliance.cho", map[string]string{"notes": "license obtained"})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/subjects/deal/d-3/clearance", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var clearance map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &clearance))
	assert.True(t, clearance["cleared"])
}

func TestAnchorDryRunRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/anchors", "", map[string]interface{}{
		"object_type": "deal",
		"object_id":   "d-1",
		"object":      map[string]interface{}{"id": "d-1", "value": 25000},
		"chains":      []string{},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var a anchor.Anchor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	assert.Equal(t, anchor.StatusPending, a.Status)
	assert.NotEmpty(t, a.CanonicalHash)

	rec = env.do(t, http.MethodGet, "/api/v1/anchors/"+a.ID, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/anchors/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegisterInvalidBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/subjects", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterMismatchedPayload(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/subjects", "", &gate.Subject{
		Ref: gate.SubjectRef{Kind: gate.KindDeal, ID: "d-9"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
