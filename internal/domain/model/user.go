package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"subscription-billing/internal/domain"
)

// User is a customer resolved by email. ReferredBy is fixed at creation.
type User struct {
	ID         string
	Email      string
	Name       string
	Phone      string
	ReferredBy *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func NewUser(id, email, name, phone string, referredBy *string) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	email = NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidArgument
	}
	if referredBy != nil && (*referredBy == "" || *referredBy == id) {
		referredBy = nil
	}
	now := time.Now()
	return &User{
		ID:         id,
		Email:      email,
		Name:       strings.TrimSpace(name),
		Phone:      strings.TrimSpace(phone),
		ReferredBy: referredBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }

// CustomerKey identifies the user towards the provider's saved-card storage.
func (u *User) CustomerKey() string { return "user_" + u.ID }

func NormalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
