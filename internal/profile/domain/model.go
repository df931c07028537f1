// Package domain holds the user profile record, including the remote
// onboarding completion flag.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Profile struct {
	UserID                snowflake.ID      `gorm:"primaryKey;column:user_id" json:"user_id"`
	FullName              string            `gorm:"column:full_name;type:text" json:"full_name"`
	JobTitle              string            `gorm:"column:job_title;type:text" json:"job_title,omitempty"`
	Phone                 string            `gorm:"column:phone;type:text" json:"phone,omitempty"`
	Timezone              string            `gorm:"column:timezone;type:text" json:"timezone,omitempty"`
	OnboardingCompleted   bool              `gorm:"column:onboarding_completed;not null;default:false" json:"onboarding_completed"`
	OnboardingCompletedAt *time.Time        `gorm:"column:onboarding_completed_at" json:"onboarding_completed_at,omitempty"`
	Metadata              datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt             time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time         `gorm:"not null" json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }

// ProfileInput is the editable part of a profile.
type ProfileInput struct {
	FullName string `json:"fullName" validate:"required,max=120"`
	JobTitle string `json:"jobTitle" validate:"omitempty,max=120"`
	Phone    string `json:"phone" validate:"omitempty,e164"`
	Timezone string `json:"timezone" validate:"omitempty,timezone"`
}

type Repository interface {
	Get(ctx context.Context, userID snowflake.ID) (*Profile, error)
	// Upsert inserts the row or updates only the given columns.
	Upsert(ctx context.Context, profile Profile, columns []string) error
}

type Service interface {
	Get(ctx context.Context, userID string) (*Profile, error)
	OnboardingCompleted(ctx context.Context, userID string) (bool, error)
	MarkOnboardingCompleted(ctx context.Context, userID string) error
	ResetOnboarding(ctx context.Context, userID string) error
	Save(ctx context.Context, userID string, input ProfileInput) (*Profile, error)
}

// FieldError names the first invalid field of a ProfileInput.
type FieldError struct {
	Field string
	Tag   string
}

func (e *FieldError) Error() string {
	return "invalid_" + e.Field
}

var (
	ErrProfileNotFound = errors.New("profile_not_found")
	ErrInvalidUser     = errors.New("invalid_user")
)
