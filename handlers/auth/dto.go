package auth

import (
	"time"

	"github.com/tech-arch1tect/crmauth/services/account"
)

type RegisterRequest struct {
	FirstName  string `json:"firstName" validate:"required,max=50"`
	LastName   string `json:"lastName" validate:"required,max=50"`
	Email      string `json:"email" validate:"required,email" example:"jane@example.com"`
	Password   string `json:"password" validate:"required"`
	Department string `json:"department,omitempty" validate:"omitempty,oneof=sales marketing support management other"`
	Timezone   string `json:"timezone,omitempty" validate:"omitempty,max=64"`
	Language   string `json:"language,omitempty" validate:"omitempty,max=8"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"jane@example.com"`
	Password string `json:"password" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	Password        string `json:"password" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email" example:"jane@example.com"`
}

type ResetPasswordRequest struct {
	Password string `json:"password" validate:"required"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// SessionResponse is returned by every flow that signs an account in.
type SessionResponse struct {
	User        *account.Account `json:"user"`
	AccessToken string           `json:"accessToken"`
	ExpiresIn   int              `json:"expiresIn" doc:"Seconds until the access token expires"`
}

type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn" doc:"Seconds until the access token expires"`
}

type UserResponse struct {
	User *account.Account `json:"user"`
}

type CreatedAPIKeyResponse struct {
	Key    string          `json:"key" doc:"Raw key, shown only once"`
	APIKey *account.APIKey `json:"apiKey"`
}

type APIKeysResponse struct {
	APIKeys []account.APIKey `json:"apiKeys"`
}

type SessionsResponse struct {
	Sessions []account.RefreshToken `json:"sessions"`
}

type LoginHistoryResponse struct {
	LoginHistory []account.LoginRecord `json:"loginHistory"`
}

type LockedData struct {
	MinutesRemaining int       `json:"minutesRemaining"`
	LockedUntil      time.Time `json:"lockedUntil"`
}
