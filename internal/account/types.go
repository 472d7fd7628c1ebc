package account

import (
	"fmt"
	"time"
)

const (
	maxFieldLength = 100
	maxAge         = 150
)

// Account represents a registered user of the system.
type Account struct {
	// ID is the stable identity from the auth provider (token subject).
	ID string `json:"id"`

	Firstname string `json:"firstname,omitempty"`
	Lastname  string `json:"lastname,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Age       int    `json:"age,omitempty"`
	Gender    string `json:"gender,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Registered reports whether the profile has been completed.
// An account row can exist before onboarding finishes.
func (a *Account) Registered() bool {
	return a.Firstname != "" && a.Lastname != ""
}

// Validate checks field lengths and ranges.
func (a *Account) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidAccount)
	}
	for name, value := range map[string]string{
		"firstname": a.Firstname,
		"lastname":  a.Lastname,
		"email":     a.Email,
		"phone":     a.Phone,
		"gender":    a.Gender,
	} {
		if len(value) > maxFieldLength {
			return fmt.Errorf("%w: %s too long", ErrInvalidAccount, name)
		}
	}
	if a.Age < 0 || a.Age > maxAge {
		return fmt.Errorf("%w: age out of range", ErrInvalidAccount)
	}
	return nil
}
