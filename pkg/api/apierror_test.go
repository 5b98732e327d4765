package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteErrorProblemShape(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusConflict, "Conflict", "subject deal/d-1 is approved")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, http.StatusConflict, problem.Status)
	assert.Equal(t, "Conflict", problem.Title)
	assert.Contains(t, problem.Type, "/errors/409")
	assert.Equal(t, "subject deal/d-1 is approved", problem.Detail)
}

func TestWriteTooManyRequestsSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteTooManyRequests(rec, 5)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
}

func TestWriteInternalHidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteInternal(rec, assert.AnError)

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.NotContains(t, problem.Detail, assert.AnError.Error())
}
