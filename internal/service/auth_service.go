package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pesio-ai/be-ops-indicators/internal/errors"
	"github.com/pesio-ai/be-ops-indicators/internal/logger"
	"github.com/pesio-ai/be-ops-indicators/internal/repository"
)

// PasswordHasher hashes and verifies secrets with bcrypt.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher creates a hasher. Out of range costs fall back to the
// bcrypt default.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash returns the bcrypt hash of secret.
func (h *PasswordHasher) Hash(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", errors.InvalidInput("password", "password must be at most 72 bytes")
		}
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to hash password")
	}
	return string(b), nil
}

// Compare reports whether secret matches hash in constant time.
func (h *PasswordHasher) Compare(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// LoginLimiter throttles repeated failed logins per email.
type LoginLimiter interface {
	Blocked(ctx context.Context, key string) (bool, error)
	RecordFailure(ctx context.Context, key string) (int, error)
}

// TokenConfig configures session credentials.
type TokenConfig struct {
	Secret []byte
	TTL    time.Duration
	Leeway time.Duration
	Issuer string
}

// Claims is the payload of a session token.
type Claims struct {
	Level    int    `json:"lvl"`
	SectorID *int64 `json:"sector_id,omitempty"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Employee  *repository.Employee
}

// AuthService validates credentials and session tokens.
type AuthService struct {
	store     repository.Store
	hasher    *PasswordHasher
	limiter   LoginLimiter
	auditor   *Auditor
	cfg       TokenConfig
	dummyHash string
	log       *logger.Logger
	now       func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(
	store repository.Store,
	hasher *PasswordHasher,
	limiter LoginLimiter,
	auditor *Auditor,
	cfg TokenConfig,
	log *logger.Logger,
) (*AuthService, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("token secret is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	dummy, err := hasher.Hash("not-a-real-password")
	if err != nil {
		return nil, err
	}
	return &AuthService{
		store:     store,
		hasher:    hasher,
		limiter:   limiter,
		auditor:   auditor,
		cfg:       cfg,
		dummyHash: dummy,
		log:       log,
		now:       time.Now,
	}, nil
}

func invalidCredentials() error {
	return errors.New(errors.ErrCodeUnauthenticated, "invalid credentials")
}

// Login checks an email and secret and issues a session token.
func (s *AuthService) Login(ctx context.Context, email, secret string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errors.InvalidInput("email", "email is required")
	}
	if secret == "" {
		return nil, errors.InvalidInput("password", "password is required")
	}

	blocked, err := s.limiter.Blocked(ctx, email)
	if err != nil {
		s.log.Warn().Err(err).Msg("Login throttle unavailable")
	}
	if blocked {
		return nil, errors.New(errors.ErrCodeUnauthenticated, "too many failed login attempts, try again later")
	}

	var emp *repository.Employee
	err = s.store.View(ctx, func(tx repository.Tx) error {
		var ferr error
		emp, ferr = tx.Employees().FindByEmail(ctx, email)
		return ferr
	})
	if err != nil {
		return nil, err
	}

	if emp == nil || !emp.Active {
		s.hasher.Compare(s.dummyHash, secret)
		s.recordFailure(ctx, email)
		return nil, invalidCredentials()
	}
	if !s.hasher.Compare(emp.PasswordHash, secret) {
		s.recordFailure(ctx, email)
		return nil, invalidCredentials()
	}

	token, exp, err := s.issue(emp)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("employee_id", emp.ID).
		Int("level", emp.Level).
		Msg("Login succeeded")

	return &LoginResult{Token: token, ExpiresAt: exp, Employee: emp}, nil
}

func (s *AuthService) recordFailure(ctx context.Context, email string) {
	n, err := s.limiter.RecordFailure(ctx, email)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to record login failure")
		return
	}
	s.log.Info().Int("failures", n).Msg("Login failed")
}

func (s *AuthService) issue(emp *repository.Employee) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.cfg.TTL)
	claims := Claims{
		Level:    emp.Level,
		SectorID: emp.SectorID,
		Name:     emp.Name,
		Email:    emp.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(emp.ID, 10),
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, errors.ErrCodeInternal, "failed to sign token")
	}
	return signed, exp, nil
}

// Validate verifies a session token and returns its actor. Every failure is
// reported as UNAUTHENTICATED.
func (s *AuthService) Validate(token string) (Actor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Actor{}, errors.Unauthenticated(fmt.Errorf("token missing"))
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(s.cfg.Leeway),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	}, opts...)
	if err != nil {
		return Actor{}, errors.Unauthenticated(err)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return Actor{}, errors.Unauthenticated(fmt.Errorf("invalid subject %q", claims.Subject))
	}
	if claims.Level < repository.LevelReader || claims.Level > repository.LevelAdmin {
		return Actor{}, errors.Unauthenticated(fmt.Errorf("invalid level %d", claims.Level))
	}

	return Actor{
		ID:       id,
		Level:    claims.Level,
		SectorID: claims.SectorID,
		Name:     claims.Name,
		Email:    claims.Email,
	}, nil
}

// Me re-reads the actor's identity.
func (s *AuthService) Me(ctx context.Context, actor Actor) (*repository.Employee, error) {
	var emp *repository.Employee
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var gerr error
		emp, gerr = tx.Employees().Get(ctx, actor.ID)
		return gerr
	})
	if errors.IsCode(err, errors.ErrCodeNotFound) {
		return nil, errors.Unauthenticated(err)
	}
	if err != nil {
		return nil, err
	}
	if !emp.Active {
		return nil, errors.Unauthenticated(fmt.Errorf("employee %d is inactive", emp.ID))
	}
	return emp, nil
}

// SeedAdmin makes sure an active level 5 identity exists. An identity already
// holding email is promoted; otherwise a new one is created. It reports
// whether anything changed.
func (s *AuthService) SeedAdmin(ctx context.Context, email, secret string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || secret == "" {
		return false, nil
	}

	var exists bool
	if err := s.store.View(ctx, func(tx repository.Tx) error {
		var eerr error
		exists, eerr = tx.Employees().ExistsActiveAtLevel(ctx, repository.LevelAdmin)
		return eerr
	}); err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return false, err
	}

	now := s.now().UTC()
	trail := newAuditTrail(nil, now)
	var seeded *repository.Employee
	err = s.store.InTransaction(ctx, func(tx repository.Tx) error {
		found, ferr := tx.Employees().FindByEmail(ctx, email)
		if ferr != nil {
			return ferr
		}
		if found != nil {
			level, active := repository.LevelAdmin, true
			seeded, ferr = tx.Employees().Update(ctx, found.ID, repository.EmployeePatch{
				Level:        &level,
				Active:       &active,
				PasswordHash: &hash,
			}, now)
			if ferr != nil {
				return ferr
			}
		} else {
			seeded = &repository.Employee{
				Name:         "Administrator",
				Email:        email,
				Level:        repository.LevelAdmin,
				Active:       true,
				PasswordHash: hash,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if ferr = tx.Employees().Create(ctx, seeded); ferr != nil {
				return ferr
			}
		}
		return trail.Add(ctx, tx, ActionIdentitySeed, map[string]any{
			"employee_id": seeded.ID,
			"email":       seeded.Email,
		})
	})
	if err != nil {
		return false, err
	}
	s.auditor.Publish(ctx, trail)

	s.log.Info().
		Int64("employee_id", seeded.ID).
		Str("email", seeded.Email).
		Msg("Admin identity seeded")

	return true, nil
}
