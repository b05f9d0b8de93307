package handler

import (
	"bytes"
	"context"
	"crypto/rsa"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idudko/fhe-telemetry/internal/auth"
	"github.com/idudko/fhe-telemetry/internal/ledger"
	"github.com/idudko/fhe-telemetry/internal/model"
	"github.com/idudko/fhe-telemetry/internal/oracle"
	"github.com/idudko/fhe-telemetry/internal/repository"
	"github.com/idudko/fhe-telemetry/internal/service"
	"github.com/idudko/fhe-telemetry/pkg/crypto"
	"github.com/idudko/fhe-telemetry/pkg/hash"
)

const (
	oracleAddr model.Address = "0x0rac1e"
	ownerAddr  model.Address = "0xABC0000000000000000000000000000000000001"
	otherAddr  model.Address = "0xDEF0000000000000000000000000000000000002"
)

var testKey = sync.OnceValue(func() *rsa.PrivateKey {
	key, err := crypto.GenerateKey(crypto.DefaultKeyBits)
	if err != nil {
		panic(err)
	}
	return key
})

type testEnv struct {
	router   http.Handler
	contract *ledger.Contract
	issuer   *auth.Issuer
}

func newTestEnv(t testing.TB, key string) *testEnv {
	t.Helper()
	priv := testKey()

	o := oracle.New(oracleAddr, priv, oracle.NewRSASigner(priv), 2, 32)
	correlator := oracle.NewCorrelator(o, oracle.NewRSAVerifier(&priv.PublicKey), oracleAddr)
	storage := repository.NewMemStorage()
	contract := ledger.New(storage, correlator, nil)

	ctx, cancel := context.WithCancel(context.Background())
	o.Start(ctx, contract)
	t.Cleanup(func() {
		o.Stop()
		cancel()
	})

	issuer, err := auth.NewIssuer("jwt-secret", time.Hour)
	require.NoError(t, err)
	pem, err := crypto.EncodePublicKeyPEM(&priv.PublicKey)
	require.NoError(t, err)

	records := service.NewRecordService(contract, service.NewOracleEncryptor(&priv.PublicKey))
	h := NewHandler(contract, records, issuer, pem, key)
	return &testEnv{
		router:   NewRouter(h, RouterConfig{Key: key, Pinger: storage}),
		contract: contract,
		issuer:   issuer,
	}
}

func (e *testEnv) token(t testing.TB, addr model.Address) string {
	t.Helper()
	token, _, err := e.issuer.IssueToken(addr)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t testing.TB, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t testing.TB, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// tryDecode is decode for polling closures, which must not fail the test
// from another goroutine.
func tryDecode[T any](w *httptest.ResponseRecorder) (T, bool) {
	var v T
	if w.Code != http.StatusOK {
		return v, false
	}
	return v, json.Unmarshal(w.Body.Bytes(), &v) == nil
}

func encrypt(t testing.TB, v uint64) model.EncryptedValue {
	t.Helper()
	h, err := oracle.EncryptValue(&testKey().PublicKey, v)
	require.NoError(t, err)
	return h
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{model.ErrInvalidInput, http.StatusBadRequest},
		{model.ErrNotFound, http.StatusNotFound},
		{model.ErrUnknownRequest, http.StatusNotFound},
		{model.ErrUnauthorized, http.StatusForbidden},
		{model.ErrVerificationFailed, http.StatusUnauthorized},
		{model.ErrSerialization, http.StatusUnprocessableEntity},
		{model.ErrUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestSession(t *testing.T) {
	env := newTestEnv(t, "")
	wallet, err := auth.NewWallet()
	require.NoError(t, err)
	pub, err := wallet.PublicKey()
	require.NoError(t, err)

	w := env.do(t, http.MethodPost, "/api/v1/session/challenge", "", challengeRequest{Address: wallet.Address()})
	require.Equal(t, http.StatusOK, w.Code)
	challenge := decode[challengeResponse](t, w)
	assert.Equal(t, wallet.Address(), challenge.Address)

	w = env.do(t, http.MethodPost, "/api/v1/records", challenge.Challenge, createRecordRequest{MetricType: "CPU Usage", Value: "42"})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "a challenge is not a session")

	sig, err := wallet.Sign(challenge.Challenge)
	require.NoError(t, err)
	w = env.do(t, http.MethodPost, "/api/v1/session", "", sessionRequest{Challenge: challenge.Challenge, PublicKey: pub, Signature: sig})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[sessionResponse](t, w)
	assert.Equal(t, wallet.Address(), resp.Address)

	addr, err := env.issuer.ParseToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, wallet.Address(), addr)

	w = env.do(t, http.MethodPost, "/api/v1/session/challenge", "", challengeRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/session", "", []byte("{"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionRefusesUnprovenAddress(t *testing.T) {
	env := newTestEnv(t, "")
	owner, err := auth.NewWallet()
	require.NoError(t, err)
	thief, err := auth.NewWallet()
	require.NoError(t, err)
	thiefPub, err := thief.PublicKey()
	require.NoError(t, err)

	// Claiming an address without any proof.
	w := env.do(t, http.MethodPost, "/api/v1/session", "", map[string]model.Address{"address": owner.Address()})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// A valid challenge for the owner's address signed with another key.
	w = env.do(t, http.MethodPost, "/api/v1/session/challenge", "", challengeRequest{Address: owner.Address()})
	require.Equal(t, http.StatusOK, w.Code)
	challenge := decode[challengeResponse](t, w).Challenge
	sig, err := thief.Sign(challenge)
	require.NoError(t, err)

	w = env.do(t, http.MethodPost, "/api/v1/session", "", sessionRequest{Challenge: challenge, PublicKey: thiefPub, Signature: sig})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRecordLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t, "")
	token := env.token(t, ownerAddr)

	w := env.do(t, http.MethodPost, "/api/v1/records", "", createRecordRequest{MetricType: "CPU Usage", Value: "42"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/records", token, createRecordRequest{MetricType: "CPU Usage"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/records", token, createRecordRequest{MetricType: "CPU Usage", Value: "42"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rec := decode[model.MetricRecord](t, w)
	assert.NotEqual(t, "42", rec.EncryptedData)

	w = env.do(t, http.MethodGet, "/api/v1/records", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[service.ListResult](t, w)
	require.Len(t, list.Records, 1)
	assert.Equal(t, "CPU Usage", list.Records[0].MetricType)
	assert.Equal(t, model.StatusActive, list.Records[0].Status)
	assert.Equal(t, ownerAddr, list.Records[0].Owner)

	w = env.do(t, http.MethodPost, "/api/v1/records/"+rec.ID+"/toggle", env.token(t, otherAddr), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/records/"+rec.ID+"/toggle", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.StatusInactive, decode[model.MetricRecord](t, w).Status)

	w = env.do(t, http.MethodGet, "/api/v1/records?status=inactive", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[service.ListResult](t, w).Records, 1)

	w = env.do(t, http.MethodGet, "/api/v1/records?status=bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/records/"+rec.ID+"/toggle", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/records/"+rec.ID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, rec, decode[model.MetricRecord](t, w))

	w = env.do(t, http.MethodGet, "/api/v1/records/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/records/types", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.SuggestedMetricTypes, decode[[]string](t, w))
}

func TestPerformanceAnalysisOverHTTP(t *testing.T) {
	env := newTestEnv(t, "")
	token := env.token(t, ownerAddr)

	samples := [][2]uint64{{95, 40}, {20, 88}, {30, 20}}
	for _, s := range samples {
		w := env.do(t, http.MethodPost, "/api/v1/metrics", token, submitMetricRequest{
			CPU:     encrypt(t, s[0]),
			Memory:  encrypt(t, s[1]),
			Disk:    encrypt(t, 1),
			Network: encrypt(t, 2),
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := env.do(t, http.MethodGet, "/api/v1/metrics/count", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint64(3), decode[countResponse](t, w).Count)

	w = env.do(t, http.MethodPost, "/api/v1/analysis/performance", token, analyzePerformanceRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/analysis/performance", token, analyzePerformanceRequest{MetricIDs: []uint64{1, 9}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/analysis/performance", token, analyzePerformanceRequest{MetricIDs: []uint64{1, 2, 3}})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.NotEmpty(t, decode[requestResponse](t, w).RequestID)

	require.Eventually(t, func() bool {
		return env.do(t, http.MethodGet, "/api/v1/analysis/1", "", nil).Code == http.StatusOK
	}, 10*time.Second, 10*time.Millisecond)

	a := decode[model.PerformanceAnalysis](t, env.do(t, http.MethodGet, "/api/v1/analysis/1", "", nil))
	assert.Equal(t, uint64(48), a.AvgCPU)
	assert.Equal(t, uint64(88), a.PeakMemory)
	assert.Equal(t, uint64(2), a.AnomalyScore)

	events := decode[[]model.Event](t, env.do(t, http.MethodGet, "/api/v1/events?limit=1", "", nil))
	require.Len(t, events, 1)
	assert.Equal(t, model.EventAnomalyDetected, events[0].Kind)
	assert.Equal(t, uint64(1), events[0].ID)

	w = env.do(t, http.MethodGet, "/api/v1/events?limit=-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCrashAndDecryptOverHTTP(t *testing.T) {
	env := newTestEnv(t, "")
	token := env.token(t, ownerAddr)

	w := env.do(t, http.MethodPost, "/api/v1/crashes", token, reportCrashRequest{
		ErrorCode:   encrypt(t, 11),
		MemDumpHash: encrypt(t, 0xfeed),
		ProcessID:   encrypt(t, 777),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, uint64(1), decode[idResponse](t, w).ID)

	w = env.do(t, http.MethodPost, "/api/v1/crashes", token, reportCrashRequest{ErrorCode: encrypt(t, 1)})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/crashes/5/analyze", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(t, http.MethodPost, "/api/v1/crashes/abc/analyze", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/crashes/1/analyze", token, nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		w := env.do(t, http.MethodGet, "/api/v1/crashes/1/status", "", nil)
		status, ok := tryDecode[map[string]bool](w)
		return ok && status["analyzed"]
	}, 10*time.Second, 10*time.Millisecond)

	cr := decode[model.CrashReport](t, env.do(t, http.MethodGet, "/api/v1/crashes/1", "", nil))
	require.NotNil(t, cr.Findings)
	assert.Equal(t, uint64(777), cr.Findings.ProcessID)

	w = env.do(t, http.MethodPost, "/api/v1/metrics", token, submitMetricRequest{
		CPU: encrypt(t, 64), Memory: encrypt(t, 1), Disk: encrypt(t, 1), Network: encrypt(t, 1),
	})
	require.Equal(t, http.StatusCreated, w.Code)
	w = env.do(t, http.MethodPost, "/api/v1/metrics/1/decrypt", token, nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		m, ok := tryDecode[model.SystemMetric](env.do(t, http.MethodGet, "/api/v1/metrics/1", "", nil))
		return ok && m.DecryptedCPU != nil && *m.DecryptedCPU == 64
	}, 10*time.Second, 10*time.Millisecond)
}

func TestDataOverHTTP(t *testing.T) {
	env := newTestEnv(t, "")
	token := env.token(t, ownerAddr)

	w := env.do(t, http.MethodGet, "/api/v1/data/greeting", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPut, "/api/v1/data/greeting", token, []byte("hello"))
	require.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/data/greeting", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", w.Body.String())
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
}

func TestDataRefusesRecordKeys(t *testing.T) {
	env := newTestEnv(t, "")
	owner := env.token(t, ownerAddr)

	w := env.do(t, http.MethodPost, "/api/v1/records", owner, createRecordRequest{MetricType: "CPU Usage", Value: "42"})
	require.Equal(t, http.StatusCreated, w.Code)
	rec := decode[model.MetricRecord](t, w)

	forged := rec
	forged.Owner = otherAddr
	forgedJSON, err := json.Marshal(forged)
	require.NoError(t, err)

	other := env.token(t, otherAddr)
	for _, key := range []string{model.RecordKey(rec.ID), model.KeyIndexKey, model.RecordKey("new")} {
		w = env.do(t, http.MethodPut, "/api/v1/data/"+key, other, forgedJSON)
		assert.Equal(t, http.StatusForbidden, w.Code, key)
	}

	w = env.do(t, http.MethodGet, "/api/v1/records/"+rec.ID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ownerAddr, decode[model.MetricRecord](t, w).Owner)
}

func TestPausedLedgerRejectsWrites(t *testing.T) {
	env := newTestEnv(t, "")
	token := env.token(t, ownerAddr)
	env.contract.Pause()

	w := env.do(t, http.MethodGet, "/api/v1/available", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[map[string]bool](t, w)["available"])

	w = env.do(t, http.MethodPost, "/api/v1/records", token, createRecordRequest{MetricType: "CPU Usage", Value: "42"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	env.contract.Resume()
	w = env.do(t, http.MethodPost, "/api/v1/records", token, createRecordRequest{MetricType: "CPU Usage", Value: "42"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestResponseSigning(t *testing.T) {
	env := newTestEnv(t, "hmac-key")

	w := env.do(t, http.MethodGet, "/api/v1/metrics/count", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, hash.ValidateHash(w.Body.Bytes(), "hmac-key", w.Header().Get(hash.HeaderName)))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session", bytes.NewReader([]byte(`{"address":"0xABC"}`)))
	req.Header.Set(hash.HeaderName, hash.ComputeHash([]byte("something else"), "hmac-key"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOracleKeyAndPing(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodGet, "/api/v1/oracle/key", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	pub, err := crypto.ParsePublicKeyPEM(w.Body.Bytes())
	require.NoError(t, err)
	assert.True(t, testKey().PublicKey.Equal(pub))

	w = env.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	NewPingHandler(nil).PingHandler(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func BenchmarkListRecords(b *testing.B) {
	env := newTestEnv(b, "")
	token := env.token(b, ownerAddr)
	for range 20 {
		w := env.do(b, http.MethodPost, "/api/v1/records", token, createRecordRequest{MetricType: "CPU Usage", Value: "42"})
		require.Equal(b, http.StatusCreated, w.Code)
	}

	b.ResetTimer()
	for b.Loop() {
		env.do(b, http.MethodGet, "/api/v1/records?q=cpu", "", nil)
	}
}
