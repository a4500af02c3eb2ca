// Package onboarding decides whether a name needs the optional info form
// before it reaches the wall, and stores that form once.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"example.com/socialwall/internal/logger"
	"example.com/socialwall/internal/models"
	"example.com/socialwall/internal/store"
)

var logg = logger.New()

// Entry is the outcome of entering a name.
type Entry struct {
	User      string           `json:"user"`
	NeedsInfo bool             `json:"needs_info"`
	Info      *models.UserInfo `json:"info,omitempty"`
}

// InfoForm is the info form as submitted. Every field is optional.
type InfoForm struct {
	Birthdate string `json:"birthdate"`
	Location  string `json:"location"`
	Networks  string `json:"networks"`
}

type Service struct {
	store store.StoreInterface
	now   func() time.Time
}

func New(st store.StoreInterface) *Service {
	return &Service{store: st, now: time.Now}
}

// Enter looks up name and reports whether the info form should be shown.
func (s *Service) Enter(ctx context.Context, name string) (Entry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Entry{}, fmt.Errorf("name is empty: %w", models.ErrValidation)
	}

	info, err := s.store.GetUserInfo(ctx, name)
	if errors.Is(err, models.ErrNotFound) {
		logg.Info("onboarding", "New user "+name+" needs info")
		return Entry{User: name, NeedsInfo: true}, nil
	}
	if err != nil {
		logg.Error("onboarding", "Failed to look up user info for "+name, err)
		return Entry{}, fmt.Errorf("get user info: %w", err)
	}
	return Entry{User: name, Info: &info}, nil
}

// SaveInfo stores form for name unless a row already exists, in which case
// the existing row is returned unchanged.
func (s *Service) SaveInfo(ctx context.Context, name string, form InfoForm) (models.UserInfo, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.UserInfo{}, fmt.Errorf("name is empty: %w", models.ErrValidation)
	}

	info := models.UserInfo{
		UserID:    name,
		Birthdate: models.StringPtr(strings.TrimSpace(form.Birthdate)),
		Location:  models.StringPtr(strings.TrimSpace(form.Location)),
		Networks:  models.StringPtr(strings.TrimSpace(form.Networks)),
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
	}
	if info.Birthdate != nil {
		if _, err := time.Parse(time.DateOnly, *info.Birthdate); err != nil {
			return models.UserInfo{}, fmt.Errorf("birthdate must be YYYY-MM-DD: %w", models.ErrValidation)
		}
	}

	stored, created, err := s.store.CreateUserInfo(ctx, info)
	if err != nil {
		logg.Error("onboarding", "Failed to save user info for "+name, err)
		return models.UserInfo{}, fmt.Errorf("save user info: %w", err)
	}
	if created {
		logg.Info("onboarding", "Saved info for "+name)
	} else {
		logg.Debug("onboarding", "Info for "+name+" already present, keeping it")
	}
	return stored, nil
}

// Info returns the stored info for name or models.ErrNotFound.
func (s *Service) Info(ctx context.Context, name string) (models.UserInfo, error) {
	return s.store.GetUserInfo(ctx, name)
}
