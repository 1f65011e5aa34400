package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ops-indicators/internal/errors"
	"github.com/pesio-ai/be-ops-indicators/internal/repository"
)

func TestLoginIssuesValidToken(t *testing.T) {
	f := newFixture(t)
	sector := f.sector("Production")
	ana := f.employee("Ana", "ana@empresa.com", repository.LevelSupervisor, idPtr(sector), "s3cret")

	res, err := f.auth.Login(f.ctx, "  ANA@empresa.com ", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, ana.ID, res.Employee.ID)
	assert.Equal(t, t0.Add(12*time.Hour), res.ExpiresAt)

	actor, err := f.auth.Validate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, ana.ID, actor.ID)
	assert.Equal(t, repository.LevelSupervisor, actor.Level)
	require.NotNil(t, actor.SectorID)
	assert.Equal(t, sector, *actor.SectorID)
	assert.Equal(t, "ana@empresa.com", actor.Email)
}

func TestLoginFailures(t *testing.T) {
	f := newFixture(t)
	f.employee("Ana", "ana@empresa.com", repository.LevelContributor, nil, "s3cret")
	inactive := f.employee("Bia", "bia@empresa.com", repository.LevelContributor, nil, "s3cret")
	f.tx(func(tx repository.Tx) error {
		_, err := tx.Employees().Update(f.ctx, inactive.ID, repository.EmployeePatch{Active: boolPtr(false)}, t0)
		return err
	})

	tests := []struct {
		name   string
		email  string
		secret string
		code   errors.Code
	}{
		{"wrong secret", "ana@empresa.com", "nope", errors.ErrCodeUnauthenticated},
		{"unknown email", "ghost@empresa.com", "s3cret", errors.ErrCodeUnauthenticated},
		{"inactive", "bia@empresa.com", "s3cret", errors.ErrCodeUnauthenticated},
		{"missing email", " ", "s3cret", errors.ErrCodeValidation},
		{"missing secret", "ana@empresa.com", "", errors.ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.auth.Login(f.ctx, tt.email, tt.secret)
			assert.True(t, errors.IsCode(err, tt.code), "got %v", err)
		})
	}

	assert.Equal(t, 1, f.limiter.failures["ana@empresa.com"])
	assert.Equal(t, 1, f.limiter.failures["ghost@empresa.com"])
	assert.Equal(t, 1, f.limiter.failures["bia@empresa.com"])
}

func TestLoginThrottle(t *testing.T) {
	f := newFixture(t)
	f.employee("Ana", "ana@empresa.com", repository.LevelContributor, nil, "s3cret")

	f.limiter.blocked = true
	_, err := f.auth.Login(f.ctx, "ana@empresa.com", "s3cret")
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthenticated))

	f.limiter.blocked = false
	f.limiter.err = fmt.Errorf("redis: connection refused")
	_, err = f.auth.Login(f.ctx, "ana@empresa.com", "s3cret")
	assert.NoError(t, err, "throttle outages fail open")
}

func TestValidateRejectsBadTokens(t *testing.T) {
	f := newFixture(t)
	f.employee("Ana", "ana@empresa.com", repository.LevelContributor, nil, "s3cret")
	res, err := f.auth.Login(f.ctx, "ana@empresa.com", "s3cret")
	require.NoError(t, err)

	claims := Claims{
		Level: repository.LevelAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			Issuer:    "be-ops-indicators",
			IssuedAt:  jwt.NewNumericDate(t0),
			ExpiresAt: jwt.NewNumericDate(t0.Add(time.Hour)),
		},
	}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("another-secret-another-secret-xx"))
	require.NoError(t, err)
	claims.Issuer = "someone-else"
	foreignIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not.a.token"},
		{"tampered", res.Token[:len(res.Token)-2] + "xx"},
		{"alg none", none},
		{"wrong key", forged},
		{"wrong issuer", foreignIssuer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.auth.Validate(tt.token)
			require.Error(t, err)
			var e *errors.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, errors.ErrCodeUnauthenticated, e.Code)
			assert.Equal(t, "unauthenticated", e.Message)
		})
	}
}

func TestValidateHonoursExpiryAndLeeway(t *testing.T) {
	f := newFixture(t)
	f.employee("Ana", "ana@empresa.com", repository.LevelContributor, nil, "s3cret")
	res, err := f.auth.Login(f.ctx, "ana@empresa.com", "s3cret")
	require.NoError(t, err)

	f.auth.now = func() time.Time { return t0.Add(12*time.Hour + time.Minute) }
	_, err = f.auth.Validate(res.Token)
	assert.NoError(t, err, "inside leeway")

	f.auth.now = func() time.Time { return t0.Add(13 * time.Hour) }
	_, err = f.auth.Validate(res.Token)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthenticated))
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	ana := f.employee("Ana", "ana@empresa.com", repository.LevelContributor, nil, "s3cret")

	e, err := f.auth.Me(f.ctx, ana)
	require.NoError(t, err)
	assert.Equal(t, "Ana", e.Name)

	_, err = f.auth.Me(f.ctx, Actor{ID: 99, Level: 1})
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthenticated))

	f.tx(func(tx repository.Tx) error {
		_, err := tx.Employees().Update(f.ctx, ana.ID, repository.EmployeePatch{Active: boolPtr(false)}, t0)
		return err
	})
	_, err = f.auth.Me(f.ctx, ana)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthenticated))
}

func TestSeedAdmin(t *testing.T) {
	f := newFixture(t)

	seeded, err := f.auth.SeedAdmin(f.ctx, "admin@empresa.com", "")
	require.NoError(t, err)
	assert.False(t, seeded, "no secret, nothing seeded")

	seeded, err = f.auth.SeedAdmin(f.ctx, "Admin@Empresa.com", "change-me")
	require.NoError(t, err)
	assert.True(t, seeded)

	res, err := f.auth.Login(f.ctx, "admin@empresa.com", "change-me")
	require.NoError(t, err)
	assert.Equal(t, repository.LevelAdmin, res.Employee.Level)

	seeded, err = f.auth.SeedAdmin(f.ctx, "other@empresa.com", "x")
	require.NoError(t, err)
	assert.False(t, seeded, "an admin already exists")
	assert.Equal(t, []string{ActionIdentitySeed}, f.sink.actions())
}

func TestSeedAdminPromotesExistingEmail(t *testing.T) {
	f := newFixture(t)
	existing := f.employee("Chefe", "chefe@empresa.com", repository.LevelManagement, nil, "old")

	seeded, err := f.auth.SeedAdmin(f.ctx, "chefe@empresa.com", "new-secret")
	require.NoError(t, err)
	assert.True(t, seeded)

	res, err := f.auth.Login(f.ctx, "chefe@empresa.com", "new-secret")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, res.Employee.ID)
	assert.Equal(t, repository.LevelAdmin, res.Employee.Level)
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(0)
	assert.Equal(t, 10, h.cost)

	h = NewPasswordHasher(4)
	hash, err := h.Hash("s3cret")
	require.NoError(t, err)
	assert.True(t, h.Compare(hash, "s3cret"))
	assert.False(t, h.Compare(hash, "S3cret"))
	assert.False(t, h.Compare("not-a-hash", "s3cret"))

	_, err = h.Hash(string(make([]byte, 80)))
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}
