package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mercatohq/mercato-backend/internal/users"
	pkgauth "github.com/mercatohq/mercato-backend/pkg/auth"
	"github.com/mercatohq/mercato-backend/pkg/config"
	"github.com/mercatohq/mercato-backend/pkg/db/models"
	"github.com/mercatohq/mercato-backend/pkg/enums"
	pkgerrors "github.com/mercatohq/mercato-backend/pkg/errors"
)

func setupAuthTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	ddl := `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'customer',
  is_active INTEGER NOT NULL DEFAULT 1,
  last_login_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(ddl).Error)
	return db
}

func newAuthService(t *testing.T, db *gorm.DB) Service {
	t.Helper()

	jwtCfg := config.JWTConfig{Secret: "test-secret", Issuer: "mercato-test", ExpirationMinutes: 15}
	pwCfg := config.PasswordConfig{
		ArgonMemoryKB:    8192,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}
	svc, err := NewService(users.NewRepository(db), jwtCfg, pwCfg)
	require.NoError(t, err)
	return svc
}

func TestRegisterAndLogin(t *testing.T) {
	db := setupAuthTestDB(t)
	svc := newAuthService(t, db)
	ctx := context.Background()

	result, err := svc.Register(ctx, RegisterInput{
		Username: "alice",
		Email:    "Alice@Example.com",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", result.User.Username)
	assert.Equal(t, "alice@example.com", result.User.Email)
	assert.Equal(t, enums.RoleCustomer, result.User.Role)
	assert.NotEmpty(t, result.Token)

	claims, err := pkgauth.ParseAccessToken(
		config.JWTConfig{Secret: "test-secret", Issuer: "mercato-test", ExpirationMinutes: 15},
		result.Token,
	)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, claims.UserID)

	login, err := svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, login.User.ID)

	var stored models.User
	require.NoError(t, db.First(&stored, "id = ?", result.User.ID).Error)
	assert.NotNil(t, stored.LastLoginAt)
	assert.NotEqual(t, "correct-horse", stored.PasswordHash)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	db := setupAuthTestDB(t)
	svc := newAuthService(t, db)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@b.com", Password: "password1"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Username: "alice2", Email: "a@b.com", Password: "password1"})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestRegisterValidatesInput(t *testing.T) {
	svc := newAuthService(t, setupAuthTestDB(t))
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Username: "", Email: "a@b.com", Password: "password1"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = svc.Register(ctx, RegisterInput{Username: "bob", Email: "a@b.com", Password: "short"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	db := setupAuthTestDB(t)
	svc := newAuthService(t, db)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@b.com", Password: "password1"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginInput{Email: "a@b.com", Password: "password2"})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized))
}

func TestLoginUnknownEmailLooksLikeBadCredentials(t *testing.T) {
	svc := newAuthService(t, setupAuthTestDB(t))

	_, err := svc.Login(context.Background(), LoginInput{Email: "ghost@b.com", Password: "password1"})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized))
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	db := setupAuthTestDB(t)
	svc := newAuthService(t, db)
	ctx := context.Background()

	result, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@b.com", Password: "password1"})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", result.User.ID).Update("is_active", false).Error)

	_, err = svc.Login(ctx, LoginInput{Email: "a@b.com", Password: "password1"})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized))
}
