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
	"github.com/tech-arch1tect/crmauth/services/account"
	"github.com/tech-arch1tect/crmauth/testutils"
)

func registerInput(email string) RegisterInput {
	return RegisterInput{
		FirstName: " Ada ",
		LastName:  "Lovelace",
		Email:     email,
		Password:  testutils.TestPasswords.Valid,
	}
}

func verifyTokenFrom(t *testing.T, mailer *testutils.MockMailer) string {
	t.Helper()
	sent := mailer.SentTo("email_verification")
	require.NotEmpty(t, sent)
	url := sent[len(sent)-1]["VerifyURL"].(string)
	return url[strings.LastIndex(url, "/")+1:]
}

func TestService_Register(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.Register(ctx, registerInput("New@Example.com"), testClient)
	require.NoError(t, err)

	assert.Equal(t, "new@example.com", res.Account.Email)
	assert.Equal(t, "Ada", res.Account.FirstName)
	assert.Equal(t, account.RoleUser, res.Account.Role)
	assert.False(t, res.Account.EmailVerified)
	assert.NotEmpty(t, res.Tokens.AccessToken)

	sent := h.mailer.SentTo("email_verification")
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0]["VerifyURL"], "http://localhost:3000/verify-email/")
	assert.Equal(t, "24 hours", sent[0]["ExpiryDuration"])

	_, err = h.svc.Register(ctx, registerInput("new@example.com"), testClient)
	assert.ErrorIs(t, err, ErrEmailExists)

	weak := registerInput("weak@example.com")
	weak.Password = testutils.TestPasswords.TooShort
	_, err = h.svc.Register(ctx, weak, testClient)
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestService_Register_EmailFailureIsNotFatal(t *testing.T) {
	mailer := &testutils.MockMailer{}
	mailer.On("SendTemplate", "email_verification", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))
	h := newHarnessWithMailer(t, mailer)

	res, err := h.svc.Register(context.Background(), registerInput("a@b.com"), testClient)

	require.NoError(t, err)
	assert.NotNil(t, res.Tokens)
}

func TestService_VerifyEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	now := time.Now().UTC()
	h.svc.SetClock(func() time.Time { return now })
	res, err := h.svc.Register(ctx, registerInput("a@b.com"), testClient)
	require.NoError(t, err)
	raw := verifyTokenFrom(t, h.mailer)

	_, err = h.svc.VerifyEmail(ctx, "wrong")
	assert.ErrorIs(t, err, ErrInvalidVerificationToken)

	verified, err := h.svc.VerifyEmail(ctx, raw)
	require.NoError(t, err)
	assert.True(t, verified.EmailVerified)

	_, err = h.svc.VerifyEmail(ctx, raw)
	assert.ErrorIs(t, err, ErrInvalidVerificationToken)

	assert.ErrorIs(t, h.svc.ResendVerification(ctx, res.Account.ID), ErrAlreadyVerified)
}

func TestService_VerifyEmail_Expired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	now := time.Now().UTC()
	h.svc.SetClock(func() time.Time { return now })
	_, err := h.svc.Register(ctx, registerInput("a@b.com"), testClient)
	require.NoError(t, err)
	raw := verifyTokenFrom(t, h.mailer)

	h.svc.SetClock(func() time.Time { return now.Add(25 * time.Hour) })
	_, err = h.svc.VerifyEmail(ctx, raw)
	assert.ErrorIs(t, err, ErrInvalidVerificationToken)
}

func TestService_ResendVerification(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.svc.Register(ctx, registerInput("a@b.com"), testClient)
	require.NoError(t, err)
	first := verifyTokenFrom(t, h.mailer)

	require.NoError(t, h.svc.ResendVerification(ctx, res.Account.ID))
	second := verifyTokenFrom(t, h.mailer)
	assert.NotEqual(t, first, second)

	_, err = h.svc.VerifyEmail(ctx, first)
	assert.ErrorIs(t, err, ErrInvalidVerificationToken, "regenerating replaces the earlier token")

	_, err = h.svc.VerifyEmail(ctx, second)
	assert.NoError(t, err)
}

func TestService_ResendVerification_DeliveryFailure(t *testing.T) {
	mailer := &testutils.MockMailer{}
	mailer.On("SendTemplate", "email_verification", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))
	h := newHarnessWithMailer(t, mailer)
	ctx := context.Background()
	acct := h.createAccount(t, "a@b.com", testutils.TestPasswords.Valid)

	err := h.svc.ResendVerification(ctx, acct.ID)

	assert.ErrorIs(t, err, ErrEmailDelivery)
	stored, _ := h.store.FindByID(ctx, acct.ID)
	assert.Empty(t, stored.EmailVerificationHash)
}

func TestService_APIKeys(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acct := h.createAccount(t, "a@b.com", testutils.TestPasswords.Valid)

	raw, key, err := h.svc.CreateAPIKey(ctx, acct.ID, "zapier")
	require.NoError(t, err)
	assert.NotEmpty(t, raw)

	keys, err := h.svc.ListAPIKeys(ctx, acct.ID)
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	require.NoError(t, h.svc.RevokeAPIKey(ctx, acct.ID, key.ID))
	assert.ErrorIs(t, h.svc.RevokeAPIKey(ctx, acct.ID, key.ID), account.ErrAPIKeyNotFound)

	h.cfg.Auth.APIKeysEnabled = false
	_, _, err = h.svc.CreateAPIKey(ctx, acct.ID, "blocked")
	assert.ErrorIs(t, err, ErrAPIKeysDisabled)
}
