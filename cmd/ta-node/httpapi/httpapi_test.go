package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rubinhealth/ta-core/config"
	"github.com/rubinhealth/ta-core/ledger"
	"github.com/rubinhealth/ta-core/llm"
	"github.com/rubinhealth/ta-core/objectstore"
	"github.com/rubinhealth/ta-core/peerstore"
	"github.com/rubinhealth/ta-core/tacore"
)

var testPeers = []string{"peer1", "peer2", "peer3", "peer4", "peer5"}

type fixedClassifier struct{ priority llm.Priority }

func (f fixedClassifier) Classify(_ context.Context, _ string, _ []byte) (llm.Result, error) {
	return llm.Result{Priority: f.priority}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	store, err := objectstore.Open(filepath.Join(dir, "objects"))
	require.NoError(t, err)
	peers, err := peerstore.Open(filepath.Join(dir, "nmk.db"), testPeers)
	require.NoError(t, err)
	t.Cleanup(func() { _ = peers.Close() })
	led, err := ledger.OpenFileLedger(filepath.Join(dir, "ledger.json"))
	require.NoError(t, err)

	core, err := tacore.New(led, store, peers, testPeers, fixedClassifier{priority: llm.PriorityHigh})
	require.NoError(t, err)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte("admin"), bcrypt.DefaultCost)
	require.NoError(t, err)
	admin := config.User{Name: "admin", Role: "ADMIN", PasswordHash: string(hashBytes)}

	cfg := config.Config{Users: []config.User{admin}, JWTSecret: "test-secret"}
	return New(core, cfg)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(loginRequest{Username: "admin", Password: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginSucceedsAndUploadRoundTrips(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(loginRequest{Username: "admin", Password: "admin"})
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var login loginResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&login))
	require.NotEmpty(t, login.Token)

	uploadReq := httptest.NewRequest(http.MethodPost, "/patients/P001/records", bytes.NewReader([]byte("hello")))
	uploadReq.Header.Set("Authorization", "Bearer "+login.Token)
	uploadW := httptest.NewRecorder()
	s.ServeHTTP(uploadW, uploadReq)
	require.Equal(t, http.StatusOK, uploadW.Code)

	var uploaded uploadResponse
	require.NoError(t, json.NewDecoder(uploadW.Body).Decode(&uploaded))
	require.Equal(t, "P001", uploaded.PatientID)
	require.Equal(t, 1, uploaded.Version)

	readReq := httptest.NewRequest(http.MethodGet, "/patients/P001/records/latest", nil)
	readReq.Header.Set("Authorization", "Bearer "+login.Token)
	readW := httptest.NewRecorder()
	s.ServeHTTP(readW, readReq)
	require.Equal(t, http.StatusOK, readW.Code)
}

func TestProtectedRouteRejectsMissingToken(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/patients/P001/records/latest", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReadUnknownPatientMapsToNotFound(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(loginRequest{Username: "admin", Password: "admin"})
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	var login loginResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&login))

	readReq := httptest.NewRequest(http.MethodGet, "/patients/ghost/records/latest", nil)
	readReq.Header.Set("Authorization", "Bearer "+login.Token)
	readW := httptest.NewRecorder()
	s.ServeHTTP(readW, readReq)

	require.Equal(t, http.StatusNotFound, readW.Code)
}
