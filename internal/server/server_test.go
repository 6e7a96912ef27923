// ABOUTME: End-to-end tests for the HTTP API using httptest against a real SQLite store
// ABOUTME: Covers status codes, response shapes and the one-audit-record-per-request contract

package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/northbridge/bankd/internal/auth"
	"github.com/northbridge/bankd/internal/config"
	"github.com/northbridge/bankd/internal/store"
)

const (
	testSecret     = "test-secret-that-is-at-least-32-bytes-long"
	testAdminEmail = "admin@northbridge.com"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "bank.db")},
		Auth: config.AuthConfig{
			JWTSecret:  testSecret,
			AdminEmail: testAdminEmail,
			TokenTTL:   time.Hour,
			BcryptCost: bcrypt.MinCost,
		},
		Logging: config.LoggingConfig{Level: "info", Format: "text"},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := New(testConfig(t), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func (s *Server) do(t *testing.T, method, path, token, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func (s *Server) postJSON(t *testing.T, path, token, body string) *httptest.ResponseRecorder {
	return s.do(t, http.MethodPost, path, token, "application/json", body)
}

func (s *Server) get(t *testing.T, path, token string) *httptest.ResponseRecorder {
	return s.do(t, http.MethodGet, path, token, "", "")
}

func (s *Server) login(t *testing.T, username, password string) *httptest.ResponseRecorder {
	form := url.Values{"username": {username}, "password": {password}}
	return s.do(t, http.MethodPost, "/auth/login", "", "application/x-www-form-urlencoded", form.Encode())
}

func (s *Server) register(t *testing.T, email, password string) string {
	t.Helper()
	rec := s.postJSON(t, "/auth/register", "", `{"email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tok TokenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&tok))
	assert.Equal(t, "bearer", tok.TokenType)
	require.NotEmpty(t, tok.AccessToken)
	return tok.AccessToken
}

func decodeObject(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	dec := json.NewDecoder(rec.Body)
	dec.UseNumber()
	var out map[string]any
	require.NoError(t, dec.Decode(&out), "body was not a JSON object")
	return out
}

func assertDetail(t *testing.T, rec *httptest.ResponseRecorder, status int, detail string) {
	t.Helper()
	assert.Equal(t, status, rec.Code)
	assert.Equal(t, detail, decodeObject(t, rec)["detail"])
}

func (s *Server) auditEntries(t *testing.T) []store.AuditLog {
	t.Helper()
	entries, err := s.store.ListAuditLogs(context.Background(), 10_000)
	require.NoError(t, err)
	return entries
}

func countAudit(entries []store.AuditLog, action, actor string) int {
	n := 0
	for _, e := range entries {
		if e.Action != action {
			continue
		}
		if actor == "" || (e.ActorEmail != nil && *e.ActorEmail == actor) {
			n++
		}
	}
	return n
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	rec := srv.get(t, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestBankingScenario(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.register(t, "alice@x.com", "pw1")
	bob := srv.register(t, "bob@x.com", "pw2")

	rec := srv.postJSON(t, "/bank/deposit", alice, `{"amount": 100}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, json.Number("100"), decodeObject(t, rec)["balance"])

	rec = srv.postJSON(t, "/bank/transfer", alice, `{"to_email":"bob@x.com","amount":30}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, json.Number("70"), decodeObject(t, rec)["sender_balance"])

	rec = srv.postJSON(t, "/bank/transfer", alice, `{"to_email":"bob@x.com","amount":1000}`)
	assertDetail(t, rec, http.StatusBadRequest, "Insufficient funds")

	// Bob sends 30 back to prove his balance is exactly 30.
	rec = srv.postJSON(t, "/bank/transfer", bob, `{"to_email":"alice@x.com","amount":30}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, json.Number("0"), decodeObject(t, rec)["sender_balance"])

	rec = srv.get(t, "/bank/transactions", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	var txs []TransactionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&txs))
	require.Len(t, txs, 4)
	assert.Equal(t, "success", txs[0].Status)
	assert.Equal(t, json.Number("30"), txs[0].Amount)
	assert.Equal(t, "failed", txs[1].Status)
	assert.Equal(t, json.Number("1000"), txs[1].Amount)
	assert.Nil(t, txs[3].FromAccountID)
	_, err := time.Parse(time.RFC3339Nano, txs[0].CreatedAt)
	assert.NoError(t, err)
}

func TestRegister(t *testing.T) {
	srv := newTestServer(t)

	srv.register(t, "alice@x.com", "pw1")

	rec := srv.postJSON(t, "/auth/register", "", `{"email":"alice@x.com","password":"pw2"}`)
	assertDetail(t, rec, http.StatusBadRequest, "Email already registered")

	rec = srv.postJSON(t, "/auth/register", "", `{"email":"alice@x.com","password":""}`)
	assertDetail(t, rec, http.StatusBadRequest, "Email already registered")

	entries := srv.auditEntries(t)
	assert.Equal(t, 1, countAudit(entries, "AUTH.REGISTER.SUCCESS", "alice@x.com"))
	assert.Equal(t, 2, countAudit(entries, "AUTH.REGISTER.FAIL", "alice@x.com"))

	for name, body := range map[string]string{
		"bad json":       `{"email":`,
		"invalid email":  `{"email":"not-an-email","password":"pw"}`,
		"empty password": `{"email":"carol@x.com","password":""}`,
	} {
		t.Run(name, func(t *testing.T) {
			before := countAudit(srv.auditEntries(t), "AUTH.REGISTER.FAIL", "")
			rec := srv.postJSON(t, "/auth/register", "", body)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Equal(t, before+1, countAudit(srv.auditEntries(t), "AUTH.REGISTER.FAIL", ""))
		})
	}
}

func TestRegister_AdminBootstrap(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.register(t, testAdminEmail, "adminpw")
	user := srv.register(t, "alice@x.com", "pw1")

	rec := srv.get(t, "/bank/admin/overview", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeObject(t, rec)
	assert.Equal(t, "Admin access granted", body["message"])
	assert.Equal(t, map[string]any{"email": testAdminEmail, "role": "admin"}, body["admin"])

	rec = srv.get(t, "/bank/admin/overview", user)
	assertDetail(t, rec, http.StatusForbidden, "Forbidden")
	rec = srv.get(t, "/bank/admin/audit", user)
	assertDetail(t, rec, http.StatusForbidden, "Forbidden")

	assert.Equal(t, 2, countAudit(srv.auditEntries(t), "ACCESS.ROLE.FAIL", "alice@x.com"))
}

func TestLogin(t *testing.T) {
	srv := newTestServer(t)
	srv.register(t, "alice@x.com", "pw1")

	rec := srv.login(t, "alice@x.com", "pw1")
	require.Equal(t, http.StatusOK, rec.Code)
	var tok TokenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&tok))

	rec = srv.get(t, "/bank/me", tok.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeObject(t, rec)
	assert.Equal(t, "Authenticated access granted", body["message"])
	assert.Equal(t, map[string]any{"email": "alice@x.com", "role": "user"}, body["user"])

	wrongPw := srv.login(t, "alice@x.com", "nope")
	unknown := srv.login(t, "ghost@x.com", "pw1")
	assert.Equal(t, http.StatusUnauthorized, wrongPw.Code)
	assert.Equal(t, wrongPw.Code, unknown.Code)
	assert.Equal(t, wrongPw.Body.String(), unknown.Body.String())
	assert.JSONEq(t, `{"detail":"Invalid credentials"}`, unknown.Body.String())

	entries := srv.auditEntries(t)
	assert.Equal(t, 1, countAudit(entries, "AUTH.LOGIN.SUCCESS", "alice@x.com"))
	assert.Equal(t, 1, countAudit(entries, "AUTH.LOGIN.FAIL", "alice@x.com"))
	assert.Equal(t, 1, countAudit(entries, "AUTH.LOGIN.FAIL", "ghost@x.com"))

	rec = srv.do(t, http.MethodPost, "/auth/login", "", "application/x-www-form-urlencoded", "username=alice%40x.com")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestBearerRequired(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/bank/me", "/bank/transactions", "/bank/admin/overview", "/bank/admin/audit"} {
		rec := srv.get(t, path, "")
		assertDetail(t, rec, http.StatusUnauthorized, "Could not validate credentials")
	}
	rec := srv.postJSON(t, "/bank/deposit", "not-a-token", `{"amount":1}`)
	assertDetail(t, rec, http.StatusUnauthorized, "Could not validate credentials")

	entries := srv.auditEntries(t)
	assert.Equal(t, 5, countAudit(entries, "AUTH.TOKEN.FAIL", ""))
	for _, e := range entries {
		assert.Nil(t, e.ActorEmail)
	}
}

func TestDeposit_Validation(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.register(t, "alice@x.com", "pw1")

	for _, body := range []string{`{"amount":0}`, `{"amount":-5}`} {
		rec := srv.postJSON(t, "/bank/deposit", alice, body)
		assertDetail(t, rec, http.StatusBadRequest, "Amount must be positive")
	}
	for _, body := range []string{`{}`, `{"amount":"lots"}`, `not json`} {
		rec := srv.postJSON(t, "/bank/deposit", alice, body)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, body)
	}

	rec := srv.postJSON(t, "/bank/deposit", alice, `{"amount":"10.25"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, json.Number("10.25"), decodeObject(t, rec)["balance"])

	assert.Equal(t, 5, countAudit(srv.auditEntries(t), "BANK.DEPOSIT.FAIL", "alice@x.com"))

	rec = srv.get(t, "/bank/transactions", alice)
	var txs []TransactionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&txs))
	assert.Len(t, txs, 1)
}

func TestDeposit_RejectsUnboundedAmounts(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.register(t, "alice@x.com", "pw1")

	for _, body := range []string{`{"amount":"1e5000000"}`, `{"amount":1e5000000}`, `{"amount":0.001}`} {
		rec := srv.postJSON(t, "/bank/deposit", alice, body)
		assertDetail(t, rec, http.StatusBadRequest, "Amount out of range")
	}

	rec := srv.postJSON(t, "/bank/deposit", alice, `{"amount":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, json.Number("1"), decodeObject(t, rec)["balance"])
	assert.Equal(t, 3, countAudit(srv.auditEntries(t), "BANK.DEPOSIT.FAIL", "alice@x.com"))
}

func TestTransfer_Validation(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.register(t, "alice@x.com", "pw1")
	srv.register(t, "bob@x.com", "pw2")
	require.Equal(t, http.StatusOK, srv.postJSON(t, "/bank/deposit", alice, `{"amount":5}`).Code)

	tests := []struct {
		name   string
		body   string
		status int
		detail string
	}{
		{"self", `{"to_email":"alice@x.com","amount":1}`, http.StatusBadRequest, "Cannot transfer to yourself"},
		{"non-positive", `{"to_email":"bob@x.com","amount":0}`, http.StatusBadRequest, "Amount must be positive"},
		{"unknown recipient", `{"to_email":"ghost@x.com","amount":1}`, http.StatusNotFound, "Recipient not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertDetail(t, srv.postJSON(t, "/bank/transfer", alice, tt.body), tt.status, tt.detail)
		})
	}

	rec := srv.postJSON(t, "/bank/transfer", alice, `{"to_email":"bob","amount":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = srv.get(t, "/bank/transactions", alice)
	var txs []TransactionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&txs))
	assert.Len(t, txs, 1, "only the deposit is on the ledger")
}

func TestUserMissingFromStore(t *testing.T) {
	srv := newTestServer(t)
	srv.register(t, "bob@x.com", "pw2")

	verifier, err := auth.NewJWTVerifier([]byte(testSecret))
	require.NoError(t, err)
	ghost, _, err := verifier.Generate(auth.Identity{Email: "ghost@x.com", Role: store.RoleUser}, time.Hour)
	require.NoError(t, err)

	assertDetail(t, srv.postJSON(t, "/bank/deposit", ghost, `{"amount":1}`), http.StatusNotFound, "User not found")
	assertDetail(t, srv.postJSON(t, "/bank/transfer", ghost, `{"to_email":"bob@x.com","amount":1}`), http.StatusNotFound, "Sender user not found")
	assertDetail(t, srv.get(t, "/bank/transactions", ghost), http.StatusNotFound, "User not found")
}

func TestAdminAudit(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.register(t, testAdminEmail, "adminpw")

	rec := srv.get(t, "/bank/admin/audit", admin)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []AuditLogResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&entries))
	require.Len(t, entries, 2)

	newest := entries[0]
	assert.Equal(t, "ADMIN.AUDIT.VIEW.SUCCESS", newest.Action)
	assert.Equal(t, "/bank/admin/audit", newest.Endpoint)
	assert.Equal(t, "success", newest.Status)
	require.NotNil(t, newest.ActorEmail)
	assert.Equal(t, testAdminEmail, *newest.ActorEmail)
	require.NotNil(t, newest.IPAddress)
	assert.Equal(t, "192.0.2.1", *newest.IPAddress)

	assert.Equal(t, "AUTH.REGISTER.SUCCESS", entries[1].Action)
	assert.Equal(t, "/auth/register", entries[1].Endpoint)
}

func TestOneAuditRecordPerGuardedRequest(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.register(t, testAdminEmail, "adminpw")
	alice := srv.register(t, "alice@x.com", "pw1")
	srv.register(t, "bob@x.com", "pw2")

	requests := []func() *httptest.ResponseRecorder{
		func() *httptest.ResponseRecorder { return srv.get(t, "/bank/me", alice) },
		func() *httptest.ResponseRecorder { return srv.get(t, "/bank/me", "") },
		func() *httptest.ResponseRecorder { return srv.postJSON(t, "/bank/deposit", alice, `{"amount":10}`) },
		func() *httptest.ResponseRecorder { return srv.postJSON(t, "/bank/deposit", alice, `{"amount":-1}`) },
		func() *httptest.ResponseRecorder {
			return srv.postJSON(t, "/bank/transfer", alice, `{"to_email":"bob@x.com","amount":3}`)
		},
		func() *httptest.ResponseRecorder {
			return srv.postJSON(t, "/bank/transfer", alice, `{"to_email":"bob@x.com","amount":300}`)
		},
		func() *httptest.ResponseRecorder { return srv.get(t, "/bank/transactions", alice) },
		func() *httptest.ResponseRecorder { return srv.get(t, "/bank/admin/overview", alice) },
		func() *httptest.ResponseRecorder { return srv.get(t, "/bank/admin/overview", admin) },
		func() *httptest.ResponseRecorder { return srv.get(t, "/bank/admin/audit", admin) },
		func() *httptest.ResponseRecorder { return srv.login(t, "alice@x.com", "bad") },
	}

	for i, req := range requests {
		before := len(srv.auditEntries(t))
		req()
		assert.Equal(t, before+1, len(srv.auditEntries(t)), "request %d", i)
	}
}

func TestCORS(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.CORSOrigins = []string{"http://localhost:4200"}
	srv, err := New(cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:4200")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:4200", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRun_StopsOnCancel(t *testing.T) {
	srv, err := New(testConfig(t), slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
