package catalog

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter() http.Handler {
	r := chi.NewRouter()
	NewHandler(nil, NewService(newMemStore(), nil, nil)).MountRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestIndicatorEndpoints(t *testing.T) {
	router := newTestRouter()

	rr := do(t, router, http.MethodPost, "/api/indicators", `{"name": "Liquidez", "numerator": ["1101"], "denominator": ["2101"]}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created IndicatorRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	rr = do(t, router, http.MethodGet, "/api/indicators/"+created.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"numerator":["1101"]`)

	rr = do(t, router, http.MethodPut, "/api/indicators/"+created.ID, `{"name": "Liquidez", "numerator": {"components": [{"accounts": ["1101"], "coefficient": 2}]}, "denominator": ["2101"]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"numerator_kind":"weighted"`)

	rr = do(t, router, http.MethodGet, "/api/indicators", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list []IndicatorRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rr = do(t, router, http.MethodDelete, "/api/indicators/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = do(t, router, http.MethodGet, "/api/indicators/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestIndicatorRejectsUnknownFields(t *testing.T) {
	rr := do(t, newTestRouter(), http.MethodPost, "/api/indicators", `{"name": "x", "numerator": ["1"], "denominator": ["2"], "owner": "me"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestConfigurationEndpoints(t *testing.T) {
	router := newTestRouter()

	rr := do(t, router, http.MethodGet, "/api/report-configurations", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = do(t, router, http.MethodPost, "/api/report-configurations", `{"name": "liquidez", "categories": [{"name": "Liquidez", "accounts": ["1101", "1102"]}], "is_active": true}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, router, http.MethodGet, "/api/report-configurations/liquidez", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"accounts":["1101","1102"]`)

	rr = do(t, router, http.MethodPost, "/api/report-configurations", `{"name": "vacio", "categories": []}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodDelete, "/api/report-configurations/liquidez", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = do(t, router, http.MethodGet, "/api/report-configurations/liquidez", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
