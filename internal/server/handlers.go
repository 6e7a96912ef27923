// ABOUTME: HTTP handlers for registration, login, banking and admin endpoints
// ABOUTME: Decodes requests, calls the auth service or ledger, and renders responses

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/northbridge/bankd/internal/audit"
	"github.com/northbridge/bankd/internal/auth"
	"github.com/northbridge/bankd/internal/bank"
)

// RegisterRequest is the JSON body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is returned by register and login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// DepositRequest is the JSON body for POST /bank/deposit.
type DepositRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

// TransferRequest is the JSON body for POST /bank/transfer.
type TransferRequest struct {
	ToEmail string           `json:"to_email"`
	Amount  *decimal.Decimal `json:"amount"`
}

// UserResponse describes the authenticated caller.
type UserResponse struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// TransactionResponse is one ledger entry in GET /bank/transactions.
type TransactionResponse struct {
	ID            string      `json:"id"`
	FromAccountID *string     `json:"from_account_id"`
	ToAccountID   string      `json:"to_account_id"`
	Amount        json.Number `json:"amount"`
	Status        string      `json:"status"`
	CreatedAt     string      `json:"created_at"`
}

// AuditLogResponse is one entry in GET /bank/admin/audit.
type AuditLogResponse struct {
	ActorEmail *string `json:"actor_email"`
	Action     string  `json:"action"`
	Endpoint   string  `json:"endpoint"`
	Status     string  `json:"status"`
	IPAddress  *string `json:"ip_address"`
	CreatedAt  string  `json:"created_at"`
}

// decodeJSON decodes the request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body", errMalformedRequest)
	}
	return nil
}

// validateEmail accepts a bare address such as alice@example.com.
func validateEmail(field, addr string) error {
	addr = strings.TrimSpace(addr)
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return fmt.Errorf("%w: %s is not a valid email address", errMalformedRequest, field)
	}
	return nil
}

// money renders a decimal as a bare JSON number.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func identityResponse(id auth.Identity) UserResponse {
	return UserResponse{Email: id.Email, Role: string(id.Role)}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRegister handles POST /auth/register.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	err := decodeJSON(r, &req)
	if err == nil {
		err = validateEmail("email", req.Email)
	}
	if err != nil {
		s.recorder.Outcome(r.Context(), auth.NormalizeEmail(req.Email), audit.OpRegister, err)
		s.writeError(w, r, err)
		return
	}

	cred, err := s.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: cred.AccessToken, TokenType: cred.TokenType})
}

// handleLogin handles POST /auth/login with form fields username and password.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var username, password string
	err := r.ParseForm()
	if err == nil {
		username = r.PostForm.Get("username")
		password = r.PostForm.Get("password")
		if username == "" || password == "" {
			err = errors.New("username and password are required")
		}
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", errMalformedRequest, err)
		s.recorder.Outcome(r.Context(), auth.NormalizeEmail(username), audit.OpLogin, err)
		s.writeError(w, r, err)
		return
	}

	cred, err := s.auth.Login(r.Context(), username, password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: cred.AccessToken, TokenType: cred.TokenType})
}

// handleMe handles GET /bank/me.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	s.recorder.Outcome(r.Context(), id.Email, audit.OpViewMe, nil)

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Authenticated access granted",
		"user":    identityResponse(id),
	})
}

// handleDeposit handles POST /bank/deposit.
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	var req DepositRequest
	err := decodeJSON(r, &req)
	if err == nil && req.Amount == nil {
		err = fmt.Errorf("%w: amount is required", errMalformedRequest)
	}
	if err != nil {
		s.recorder.Outcome(r.Context(), id.Email, audit.OpDeposit, err)
		s.writeError(w, r, err)
		return
	}

	balance, err := s.ledger.Deposit(r.Context(), id.Email, *req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]json.Number{"balance": money(balance)})
}

// handleTransfer handles POST /bank/transfer.
func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	var req TransferRequest
	err := decodeJSON(r, &req)
	if err == nil {
		err = validateEmail("to_email", req.ToEmail)
	}
	if err == nil && req.Amount == nil {
		err = fmt.Errorf("%w: amount is required", errMalformedRequest)
	}
	if err != nil {
		s.recorder.Outcome(r.Context(), id.Email, audit.OpTransfer, err)
		s.writeError(w, r, err)
		return
	}

	balance, err := s.ledger.Transfer(r.Context(), id.Email, req.ToEmail, *req.Amount)
	if errors.Is(err, bank.ErrUserNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Sender user not found"})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]json.Number{"sender_balance": money(balance)})
}

// handleTransactions handles GET /bank/transactions.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	txs, err := s.ledger.ListTransactions(r.Context(), id.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	response := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		response = append(response, TransactionResponse{
			ID:            tx.ID,
			FromAccountID: tx.FromAccountID,
			ToAccountID:   tx.ToAccountID,
			Amount:        money(tx.Amount),
			Status:        string(tx.Status),
			CreatedAt:     formatTimestamp(tx.CreatedAt),
		})
	}
	writeJSON(w, http.StatusOK, response)
}

// handleAdminOverview handles GET /bank/admin/overview.
func (s *Server) handleAdminOverview(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	s.recorder.Outcome(r.Context(), id.Email, audit.OpAdminOverview, nil)

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Admin access granted",
		"admin":   identityResponse(id),
	})
}

// handleAdminAudit handles GET /bank/admin/audit.
func (s *Server) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	entries, err := s.recorder.ViewRecent(r.Context(), id.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	response := make([]AuditLogResponse, 0, len(entries))
	for _, e := range entries {
		response = append(response, AuditLogResponse{
			ActorEmail: e.ActorEmail,
			Action:     e.Action,
			Endpoint:   e.Endpoint,
			Status:     string(e.Status),
			IPAddress:  e.IPAddress,
			CreatedAt:  formatTimestamp(e.CreatedAt),
		})
	}
	writeJSON(w, http.StatusOK, response)
}
