package services

import (
	"testing"
	"time"

	"github.com/notewell/notewell/internal/config"
	"github.com/notewell/notewell/internal/dto"
	"github.com/notewell/notewell/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestAuthService(t *testing.T) (*AuthService, *gorm.DB) {
	t.Helper()
	db := openTestDB(t,
		&models.User{}, &models.RefreshToken{},
		&models.Note{}, &models.Subscription{},
	)
	cfg := &config.Config{
		JWTSecret:        "test-secret",
		JWTAccessExpiry:  15 * time.Minute,
		JWTRefreshExpiry: 168 * time.Hour,
	}
	return NewAuthService(db, cfg), db
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newTestAuthService(t)

	resp, err := svc.Register(&dto.RegisterRequest{
		Email:    "a@example.com",
		Password: "password123",
		Name:     "Ada",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "a@example.com", resp.User.Email)

	login, err := svc.Login(&dto.LoginRequest{Email: "a@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, login.AccessToken)

	_, err = svc.Login(&dto.LoginRequest{Email: "a@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc, _ := newTestAuthService(t)

	req := &dto.RegisterRequest{Email: "a@example.com", Password: "password123"}
	_, err := svc.Register(req)
	require.NoError(t, err)

	_, err = svc.Register(req)
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	svc, _ := newTestAuthService(t)

	_, err := svc.Register(&dto.RegisterRequest{Email: "a@example.com", Password: "short"})
	assert.Error(t, err)
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, _ := newTestAuthService(t)

	resp, err := svc.Register(&dto.RegisterRequest{Email: "a@example.com", Password: "password123"})
	require.NoError(t, err)

	rotated, err := svc.Refresh(&dto.RefreshRequest{RefreshToken: resp.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, resp.RefreshToken, rotated.RefreshToken)

	// The consumed token is revoked and cannot be replayed.
	_, err = svc.Refresh(&dto.RefreshRequest{RefreshToken: resp.RefreshToken})
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Refresh(&dto.RefreshRequest{RefreshToken: rotated.RefreshToken})
	assert.NoError(t, err)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	svc, _ := newTestAuthService(t)

	resp, err := svc.Register(&dto.RegisterRequest{Email: "a@example.com", Password: "password123"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(&dto.LogoutRequest{RefreshToken: resp.RefreshToken}))

	_, err = svc.Refresh(&dto.RefreshRequest{RefreshToken: resp.RefreshToken})
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDeleteAccountRemovesAllUserData(t *testing.T) {
	svc, db := newTestAuthService(t)

	resp, err := svc.Register(&dto.RegisterRequest{Email: "a@example.com", Password: "password123"})
	require.NoError(t, err)
	userID := resp.User.ID

	notes := NewNoteService(db)
	_, err = notes.Create(userID, dto.CreateNoteRequest{Title: "Keepsake"})
	require.NoError(t, err)

	require.ErrorIs(t, svc.DeleteAccount(userID, "wrong"), ErrInvalidCredentials)
	require.NoError(t, svc.DeleteAccount(userID, "password123"))

	_, err = svc.GetUser(userID)
	assert.ErrorIs(t, err, ErrUserNotFound)

	remaining, err := notes.List(userID)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	var tokens int64
	require.NoError(t, db.Model(&models.RefreshToken{}).Where("user_id = ?", userID).Count(&tokens).Error)
	assert.Equal(t, int64(0), tokens)
}
