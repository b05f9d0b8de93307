package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/idudko/fhe-telemetry/internal/auth"
	"github.com/idudko/fhe-telemetry/internal/ledger"
	"github.com/idudko/fhe-telemetry/internal/oracle"
	"github.com/idudko/fhe-telemetry/internal/repository"
	"github.com/idudko/fhe-telemetry/internal/service"
)

// ExampleNewRouter asks for a wallet challenge and reads the metric counter.
// The wallet signs the challenge and posts it back to open a session.
//
// Endpoints:
//
//	POST /api/v1/session/challenge  {"address":"0xABC"}
//	POST /api/v1/session            {"challenge":"...","publicKey":"...","signature":"..."}
//	GET  /api/v1/metrics/count
func ExampleNewRouter() {
	priv := testKey()
	o := oracle.New("0x0rac1e", priv, oracle.NewRSASigner(priv), 1, 4)
	correlator := oracle.NewCorrelator(o, oracle.NewRSAVerifier(o.PublicKey()), o.Address())
	storage := repository.NewMemStorage()
	contract := ledger.New(storage, correlator, nil)
	o.Start(context.Background(), contract)
	defer o.Stop()

	issuer, _ := auth.NewIssuer("jwt-secret", time.Hour)
	records := service.NewRecordService(contract, service.NewOracleEncryptor(o.PublicKey()))
	router := NewRouter(NewHandler(contract, records, issuer, nil, ""), RouterConfig{Pinger: storage})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/challenge", strings.NewReader(`{"address":"0xABC"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	fmt.Println("challenge:", w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/session", strings.NewReader(`{"address":"0xABC"}`))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	fmt.Println("unsigned session:", w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/metrics/count", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	fmt.Println("count:", w.Body.String())

	// Output:
	// challenge: 200
	// unsigned session: 401
	// count: {"count":0}
}
