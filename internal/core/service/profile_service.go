package service

import (
	"context"
	"errors"
	"time"

	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/logger"
	"github.com/rl1809/bookstore/internal/port"
)

type ProfileService struct {
	profiles port.ProfileRepository
	now      func() time.Time
}

func NewProfileService(profiles port.ProfileRepository) *ProfileService {
	return &ProfileService{profiles: profiles, now: time.Now}
}

// Get returns the customer's profile. A customer who never saved one gets
// an empty profile carrying the name and email from their token.
func (s *ProfileService) Get(ctx context.Context, customer domain.Customer) (*domain.Profile, error) {
	profile, err := s.profiles.GetProfile(ctx, customer.ID)
	if errors.Is(err, domain.ErrProfileNotFound) {
		return &domain.Profile{UserID: customer.ID, FirstName: customer.Name, Email: customer.Email}, nil
	}
	return profile, err
}

// Update replaces the stored profile.
func (s *ProfileService) Update(ctx context.Context, profile domain.Profile) (*domain.Profile, error) {
	if err := profile.Validate(s.now()); err != nil {
		return nil, err
	}

	saved, err := s.profiles.SaveProfile(ctx, profile)
	if err != nil {
		return nil, err
	}

	logger.Get().Info().
		Str("user_id", saved.UserID).
		Bool("default_shipping", saved.HasDefaultShipping()).
		Msg("profile updated")
	return saved, nil
}
