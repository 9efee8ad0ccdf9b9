package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/posdeploy/internal/orchestrator"
)

type fixedSource struct {
	rec orchestrator.Record
}

func (f fixedSource) Snapshot() orchestrator.Record {
	return f.rec
}

func testServer() *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(fixedSource{rec: orchestrator.Record{
		RunID:                 "run-1",
		Network:               "goerli",
		ChainID:               5,
		Contract:              "Pos25",
		Address:               "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		ConfirmationsObserved: 1,
		Verification:          orchestrator.VerificationPending,
		State:                 orchestrator.StateConfirmed,
	}}, logger, "v1.2.3")
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	testServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","version":"v1.2.3"}`, rec.Body.String())
}

func TestStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	testServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "CONFIRMED", body["state"])
	assert.Equal(t, "goerli", body["network"])
	assert.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", body["address"])
	assert.Equal(t, float64(1), body["confirmationsObserved"])
}

func TestNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	testServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestMetricsDisabled(t *testing.T) {
	rec := httptest.NewRecorder()
	testServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	s := testServer()
	errChan, err := s.Serve(ctx, "127.0.0.1:0")
	require.NoError(t, err)

	cancel()
	select {
	case err, ok := <-errChan:
		if ok {
			assert.NoError(t, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
