package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/backend/internal/coordinator"
	"github.com/ocx/backend/internal/transport"
)

func newTestServer(t *testing.T) (*Server, *coordinator.TransactionCoordinator) {
	t.Helper()
	mt := transport.NewMockTransport(transport.MockConfig{ResponseDelay: 5 * time.Millisecond})
	c := coordinator.New(mt, nil)
	require.NoError(t, c.Connect(transport.DefaultConfig("mock")))
	return New(c, []string{"*"}, true, 0, nil), c
}

func doJSON(t *testing.T, r *http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	(*r).ServeHTTP(rec, req)
	return rec
}

func TestHandlePurchaseApproved(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	var h http.Handler = router

	rec := doJSON(t, &h, http.MethodPost, "/purchase", purchaseRequestBody{
		AmountCents:   5000000,
		TerminalID:    "TERM01",
		TransactionID: "TX0001",
		CashierID:     "CASH01",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp responseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Approved)
	assert.Equal(t, "917107", resp.AuthCode)
}

func TestHandlePurchaseInvalidRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	var h http.Handler = router

	rec := doJSON(t, &h, http.MethodPost, "/purchase", purchaseRequestBody{TransactionID: "TX0001"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStatusReportsMockMode(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	var h http.Handler = router

	rec := doJSON(t, &h, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.MockMode)
	assert.True(t, st.Connected)
}

func TestHandlePurchaseBusyReturnsConflict(t *testing.T) {
	srv, c := newTestServer(t)
	router := srv.Router()
	var h http.Handler = router

	body := purchaseRequestBody{AmountCents: 100, TerminalID: "T1", TransactionID: "TX1"}
	go func() { doJSON(t, &h, http.MethodPost, "/purchase", body) }()
	time.Sleep(2 * time.Millisecond)

	rec := doJSON(t, &h, http.MethodPost, "/purchase", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// drain the coordinator so the goroutine above settles before the test exits
	time.Sleep(10 * time.Millisecond)
	_ = c.Status()
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	var h http.Handler = router

	rec := doJSON(t, &h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
