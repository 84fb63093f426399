package domain

import (
	"fmt"
	"strings"
	"time"
)

const maxPhoneLength = 20

// Profile holds the contact details a customer keeps between orders.
type Profile struct {
	UserID          string
	FirstName       string
	LastName        string
	Email           string
	PhoneNumber     string
	DateOfBirth     *time.Time
	DefaultShipping ShippingAddress
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FullName falls back to the user ID when no name is on file.
func (p Profile) FullName() string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		return p.UserID
	}
	return name
}

// HasDefaultShipping reports whether a complete address is on file.
func (p Profile) HasDefaultShipping() bool {
	return p.DefaultShipping.Validate() == nil
}

// Validate accepts a partially filled address but not a malformed one.
func (p Profile) Validate(now time.Time) error {
	if p.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidProfile)
	}
	if len(p.PhoneNumber) > maxPhoneLength {
		return fmt.Errorf("%w: phone number longer than %d characters", ErrInvalidProfile, maxPhoneLength)
	}
	if p.DateOfBirth != nil && p.DateOfBirth.After(now) {
		return fmt.Errorf("%w: date of birth is in the future", ErrInvalidProfile)
	}
	if zip := strings.TrimSpace(p.DefaultShipping.ZipCode); zip != "" && len(zip) < 3 {
		return fmt.Errorf("%w: zip code too short", ErrInvalidProfile)
	}
	return nil
}
