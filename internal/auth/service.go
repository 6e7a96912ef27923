// ABOUTME: Credential verification: registration, login and token authentication
// ABOUTME: Each register/login attempt produces exactly one audit record

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/northbridge/bankd/internal/audit"
	"github.com/northbridge/bankd/internal/store"
)

// DefaultTokenTTL is used when ServiceConfig.TokenTTL is zero.
const DefaultTokenTTL = 30 * time.Minute

// TokenType is the only credential type issued.
const TokenType = "bearer"

// Credential errors
var (
	ErrDuplicateIdentity  = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
)

// Credential is a signed bearer token returned by Register and Login.
type Credential struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

// ServiceConfig holds the collaborators of a Service.
type ServiceConfig struct {
	Store      store.Store
	Hasher     PasswordHasher
	Tokens     *JWTVerifier
	Recorder   *audit.Recorder
	TokenTTL   time.Duration
	AdminEmail string
	Logger     *slog.Logger
}

// Service registers users, checks passwords and verifies tokens.
type Service struct {
	store      store.Store
	hasher     PasswordHasher
	tokens     *JWTVerifier
	recorder   *audit.Recorder
	tokenTTL   time.Duration
	adminEmail string
	dummyHash  string
	logger     *slog.Logger
}

// NewService creates a Service from cfg.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil || cfg.Hasher == nil || cfg.Tokens == nil || cfg.Recorder == nil {
		return nil, errors.New("auth: store, hasher, tokens and recorder are required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.TokenTTL
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}

	// Compared against on unknown-user logins so both failure paths cost one bcrypt check.
	dummy, err := cfg.Hasher.Hash("northbridge-unknown-user")
	if err != nil {
		return nil, fmt.Errorf("preparing dummy hash: %w", err)
	}

	return &Service{
		store:      cfg.Store,
		hasher:     cfg.Hasher,
		tokens:     cfg.Tokens,
		recorder:   cfg.Recorder,
		tokenTTL:   ttl,
		adminEmail: NormalizeEmail(cfg.AdminEmail),
		dummyHash:  dummy,
		logger:     logger.With("component", "auth"),
	}, nil
}

// NormalizeEmail trims and lower-cases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user with a zero-balance account and returns a credential.
// The configured admin address receives RoleAdmin; everyone else RoleUser.
func (s *Service) Register(ctx context.Context, email, password string) (*Credential, error) {
	email = NormalizeEmail(email)
	cred, err := s.register(ctx, email, password)
	s.recorder.Outcome(ctx, email, audit.OpRegister, err)
	return cred, err
}

func (s *Service) register(ctx context.Context, email, password string) (*Credential, error) {
	// An existing email is reported before the password is looked at.
	_, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return nil, ErrDuplicateIdentity
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	role := store.RoleUser
	if s.adminEmail != "" && email == s.adminEmail {
		role = store.RoleAdmin
	}

	user := &store.User{Email: email, PasswordHash: hash, Role: role}
	err = s.store.WithTx(ctx, func(q store.Queries) error {
		if err := q.CreateUser(ctx, user); err != nil {
			return err
		}
		return q.CreateAccount(ctx, &store.Account{UserID: user.ID})
	})
	if errors.Is(err, store.ErrEmailExists) {
		return nil, ErrDuplicateIdentity
	}
	if err != nil {
		return nil, fmt.Errorf("registering user: %w", err)
	}

	s.logger.Info("user registered", "email", email, "role", role)
	return s.issue(Identity{Email: user.Email, Role: user.Role})
}

// Login checks the password of username and returns a credential.
// Unknown users and wrong passwords both fail with ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (*Credential, error) {
	email := NormalizeEmail(username)
	cred, err := s.login(ctx, email, password)
	s.recorder.Outcome(ctx, email, audit.OpLogin, err)
	return cred, err
}

func (s *Service) login(ctx context.Context, email, password string) (*Credential, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		s.hasher.Verify(s.dummyHash, password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		s.hasher.Verify(s.dummyHash, password)
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	return s.issue(Identity{Email: user.Email, Role: user.Role})
}

func (s *Service) issue(id Identity) (*Credential, error) {
	token, expiresAt, err := s.tokens.Generate(id, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &Credential{AccessToken: token, TokenType: TokenType, ExpiresAt: expiresAt}, nil
}

// Authenticate verifies a bearer token. Every rejection wraps ErrUnauthenticated.
func (s *Service) Authenticate(token string) (Identity, error) {
	return s.tokens.Verify(token)
}

// RequireAuthenticated passes through any verified identity.
func RequireAuthenticated(id Identity) (Identity, error) {
	if id.Email == "" {
		return Identity{}, ErrUnauthenticated
	}
	return id, nil
}

// RequireRole fails with ErrForbidden unless id has exactly role.
func RequireRole(id Identity, role store.Role) (Identity, error) {
	if id.Role != role {
		return Identity{}, ErrForbidden
	}
	return id, nil
}
