package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/crmauth/config"
	"github.com/tech-arch1tect/crmauth/services/account"
	"github.com/tech-arch1tect/crmauth/testutils"
)

func resetTokenFrom(t *testing.T, mailer *testutils.MockMailer) string {
	t.Helper()
	sent := mailer.SentTo("password_reset")
	require.NotEmpty(t, sent)
	url := sent[len(sent)-1]["ResetURL"].(string)
	return url[strings.LastIndex(url, "/")+1:]
}

func TestService_ChangePassword(t *testing.T) {
	t.Run("keeps only the current session", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		acct := h.createAccount(t, "a@b.com", testutils.TestPasswords.Valid)

		current, _ := h.svc.Login(ctx, "a@b.com", testutils.TestPasswords.Valid, testClient)
		other, _ := h.svc.Login(ctx, "a@b.com", testutils.TestPasswords.Valid, testClient)

		err := h.svc.ChangePassword(ctx, acct.ID, testutils.TestPasswords.Valid, testutils.TestPasswords.Other, current.Tokens.RefreshToken)
		require.NoError(t, err)

		_, err = h.svc.Refresh(ctx, other.Tokens.RefreshToken, testClient)
		assert.ErrorIs(t, err, ErrInvalidRefreshToken)

		_, err = h.svc.Login(ctx, "a@b.com", testutils.TestPasswords.Valid, testClient)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		_, err = h.svc.Login(ctx, "a@b.com", testutils.TestPasswords.Other, testClient)
		assert.NoError(t, err)

		assert.Len(t, h.mailer.SentTo("password_changed"), 1)
	})

	t.Run("current session survives", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		acct := h.createAccount(t, "a@b.com", testutils.TestPasswords.Valid)
		current, _ := h.svc.Login(ctx, "a@b.com", testutils.TestPasswords.Valid, testClient)

		require.NoError(t, h.svc.ChangePassword(ctx, acct.ID, testutils.TestPasswords.Valid, testutils.TestPasswords.Other, current.Tokens.RefreshToken))

		_, err := h.svc.Refresh(ctx, current.Tokens.RefreshToken, testClient)
		assert.NoError(t, err)
	})

	t.Run("revoke all policy", func(t *testing.T) {
		h := newHarness(t)
		h.cfg.Auth.ChangePasswordPolicy = config.RevokeAllSessions
		ctx := context.Background()
		acct := h.createAccount(t, "a@b.com", testutils.TestPasswords.Valid)
		current, _ := h.svc.Login(ctx, "a@b.com", testutils.TestPasswords.Valid, testClient)

		require.NoError(t, h.svc.ChangePassword(ctx, acct.ID, testutils.TestPasswords.Valid, testutils.TestPasswords.Other, current.Tokens.RefreshToken))

		tokens, _ := h.store.ListRefreshTokens(ctx, acct.ID)
		assert.Empty(t, tokens)
	})

	t.Run("wrong current password", func(t *testing.T) {
		h := newHarness(t)
		acct := h.createAccount(t, "a@b.com", testutils.TestPasswords.Valid)

		err := h.svc.ChangePassword(context.Background(), acct.ID, testutils.TestPasswords.Wrong, testutils.TestPasswords.Other, "")
		assert.ErrorIs(t, err, ErrInvalidPassword)
	})

	t.Run("weak new password", func(t *testing.T) {
		h := newHarness(t)
		acct := h.createAccount(t, "a@b.com", testutils.TestPasswords.Valid)

		err := h.svc.ChangePassword(context.Background(), acct.ID, testutils.TestPasswords.Valid, testutils.TestPasswords.NoNumber, "")
		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})
}

func TestService_PasswordReset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acct := h.createAccount(t, "a@b.com", testutils.TestPasswords.Valid)
	session, err := h.svc.Login(ctx, "a@b.com", testutils.TestPasswords.Valid, testClient)
	require.NoError(t, err)

	require.NoError(t, h.svc.RequestPasswordReset(ctx, "A@B.COM"))
	raw := resetTokenFrom(t, h.mailer)
	assert.Len(t, raw, 64)
	assert.Equal(t, "1 hour", h.mailer.SentTo("password_reset")[0]["ExpiryDuration"])

	stored, _ := h.store.FindByID(ctx, acct.ID)
	assert.Equal(t, account.HashToken(raw), stored.PasswordResetHash)

	assert.ErrorIs(t, h.svc.ResetPassword(ctx, "not-the-token", testutils.TestPasswords.Other), ErrInvalidResetToken)

	require.NoError(t, h.svc.ResetPassword(ctx, raw, testutils.TestPasswords.Other))

	_, err = h.svc.Refresh(ctx, session.Tokens.RefreshToken, testClient)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	assert.ErrorIs(t, h.svc.ResetPassword(ctx, raw, testutils.TestPasswords.Valid), ErrInvalidResetToken, "token is single use")

	_, err = h.svc.Login(ctx, "a@b.com", testutils.TestPasswords.Other, testClient)
	assert.NoError(t, err)
}

func TestService_PasswordReset_Expired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createAccount(t, "a@b.com", testutils.TestPasswords.Valid)

	now := time.Now().UTC()
	h.svc.SetClock(func() time.Time { return now })
	require.NoError(t, h.svc.RequestPasswordReset(ctx, "a@b.com"))
	raw := resetTokenFrom(t, h.mailer)

	h.svc.SetClock(func() time.Time { return now.Add(61 * time.Minute) })
	assert.ErrorIs(t, h.svc.ResetPassword(ctx, raw, testutils.TestPasswords.Other), ErrInvalidResetToken)
}

func TestService_RequestPasswordReset_UnknownEmail(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.svc.RequestPasswordReset(context.Background(), "ghost@b.com"))
	assert.Empty(t, h.mailer.SentTo("password_reset"))
}

func TestService_RequestPasswordReset_DeliveryFailure(t *testing.T) {
	mailer := &testutils.MockMailer{}
	mailer.On("SendTemplate", "password_reset", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))
	h := newHarnessWithMailer(t, mailer)
	ctx := context.Background()
	acct := h.createAccount(t, "a@b.com", testutils.TestPasswords.Valid)

	err := h.svc.RequestPasswordReset(ctx, "a@b.com")

	assert.ErrorIs(t, err, ErrEmailDelivery)
	stored, _ := h.store.FindByID(ctx, acct.ID)
	assert.Empty(t, stored.PasswordResetHash, "unsent token is discarded")
	mailer.AssertExpectations(t)
}
