package account

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser    Role = "user"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleManager, RoleAdmin:
		return true
	}
	return false
}

type Department string

const (
	DepartmentSales      Department = "sales"
	DepartmentMarketing  Department = "marketing"
	DepartmentSupport    Department = "support"
	DepartmentManagement Department = "management"
	DepartmentOther      Department = "other"
)

type Account struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	FirstName  string     `gorm:"size:50;not null" json:"firstName"`
	LastName   string     `gorm:"size:50;not null" json:"lastName"`
	Email      string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password   string     `gorm:"size:255;not null" json:"-"`
	Role       Role       `gorm:"size:20;not null;default:user;index" json:"role"`
	Department Department `gorm:"size:20;not null;default:other" json:"department"`
	Phone      string     `gorm:"size:30" json:"phone,omitempty"`
	Timezone   string     `gorm:"size:64;not null;default:UTC" json:"timezone"`
	Language   string     `gorm:"size:8;not null;default:en" json:"language"`
	Active     bool       `gorm:"not null;default:true;index" json:"isActive"`

	EmailVerified              bool       `gorm:"not null;default:false" json:"isEmailVerified"`
	EmailVerificationHash      string     `gorm:"size:64;index" json:"-"`
	EmailVerificationExpiresAt *time.Time `json:"-"`
	PasswordResetHash          string     `gorm:"size:64;index" json:"-"`
	PasswordResetExpiresAt     *time.Time `json:"-"`

	FailedLoginCount   int        `gorm:"not null;default:0" json:"-"`
	LockedUntil        *time.Time `json:"-"`
	LastLogin          *time.Time `json:"lastLogin,omitempty"`
	LastPasswordChange *time.Time `json:"lastPasswordChange,omitempty"`

	RefreshTokens []RefreshToken `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	LoginHistory  []LoginRecord  `gorm:"constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (a *Account) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// IsLocked reports whether a lockout is still in force at now.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// LockExpired reports whether a lockout was set but has run out.
func (a *Account) LockExpired(now time.Time) bool {
	return a.LockedUntil != nil && !a.LockedUntil.After(now)
}

// RefreshToken is one active refresh session. Only the sha256 of the token is stored.
type RefreshToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AccountID uint      `gorm:"not null;index" json:"-"`
	TokenHash string    `gorm:"uniqueIndex;size:64;not null" json:"-"`
	TokenID   string    `gorm:"size:64;not null" json:"-"`
	IssuedAt  time.Time `gorm:"not null" json:"issuedAt"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expiresAt"`
	IPAddress string    `gorm:"size:64" json:"ipAddress"`
	UserAgent string    `gorm:"size:512" json:"userAgent"`
	Device    string    `gorm:"size:128" json:"device"`
}

type LoginRecord struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	AccountID uint      `gorm:"not null;index" json:"-"`
	At        time.Time `gorm:"not null" json:"timestamp"`
	IPAddress string    `gorm:"size:64" json:"ipAddress"`
	UserAgent string    `gorm:"size:512" json:"userAgent"`
	Device    string    `gorm:"size:128" json:"device"`
	Success   bool      `gorm:"not null" json:"success"`
}

type APIKey struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	AccountID  uint       `gorm:"not null;index" json:"-"`
	Name       string     `gorm:"size:100;not null" json:"name"`
	Prefix     string     `gorm:"size:16;not null" json:"prefix"`
	KeyHash    string     `gorm:"uniqueIndex;size:64;not null" json:"-"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	RevokedAt  *time.Time `json:"revokedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func (k *APIKey) Revoked() bool {
	return k.RevokedAt != nil
}

// Models lists every table owned by this package.
func Models() []any {
	return []any{&Account{}, &RefreshToken{}, &LoginRecord{}, &APIKey{}}
}
