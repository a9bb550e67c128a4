package models

import (
	"encoding/json"
	"strings"
	"time"
)

// User is the principal behind an authenticated session
type User struct {
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	aux := struct {
		*plain
		CreatedAt Timestamp `json:"created_at"`
	}{plain: (*plain)(u)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	u.CreatedAt = aux.CreatedAt.Time
	return nil
}

// UserCreate is the registration request body
type UserCreate struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginForm is the sign-in form. The API expects the email as "username".
type LoginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// Normalize trims the email
func (f *LoginForm) Normalize() {
	f.Email = strings.TrimSpace(f.Email)
}

// Normalize trims the email
func (u *UserCreate) Normalize() {
	u.Email = strings.TrimSpace(u.Email)
}

// Token is the access token issued by the API
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// UserError is returned for authentication failures
type UserError struct {
	Message string
}

func (e UserError) Error() string {
	return e.Message
}

var (
	ErrNotAuthenticated = UserError{"not authenticated"}
	ErrTooManyAttempts  = UserError{"Too many attempts, please try again later"}
)
