package steps

import (
	"context"
	"encoding/json"
	"errors"

	authdomain "github.com/smallbiznis/launchpad/internal/auth/domain"
	"github.com/smallbiznis/launchpad/internal/onboarding/domain"
	profiledomain "github.com/smallbiznis/launchpad/internal/profile/domain"
)

type ProfileCompletion struct {
	profiles profiledomain.Service
}

func NewProfileCompletion(profiles profiledomain.Service) *ProfileCompletion {
	return &ProfileCompletion{profiles: profiles}
}

func (s *ProfileCompletion) ID() domain.StepID { return domain.StepProfileCompletion }

func (s *ProfileCompletion) Render(user authdomain.SessionUser, data domain.Data) View {
	fullName := data.String(domain.KeyFullName)
	if fullName == "" {
		fullName = user.DisplayName
	}
	return View{
		Step:  s.ID(),
		Title: "Complete your profile",
		Fields: map[string]any{
			domain.KeyFullName: fullName,
			domain.KeyJobTitle: data.String(domain.KeyJobTitle),
			domain.KeyPhone:    data.String(domain.KeyPhone),
			domain.KeyTimezone: data.String(domain.KeyTimezone),
		},
		Actions: []string{"continue", "back"},
	}
}

func (s *ProfileCompletion) Submit(ctx context.Context, sc StepContext, raw json.RawMessage) (Outcome, error) {
	var input profiledomain.ProfileInput
	if err := decodeInput(raw, &input); err != nil {
		return Outcome{}, err
	}

	profile, err := s.profiles.Save(ctx, sc.User.ID, input)
	if err != nil {
		var fieldErr *profiledomain.FieldError
		if errors.As(err, &fieldErr) {
			return Outcome{}, domain.NewValidationError(fieldErr.Field, "invalid_"+fieldErr.Tag, "Check the "+fieldErr.Field+" field.")
		}
		if errors.Is(err, profiledomain.ErrInvalidUser) {
			return Outcome{}, domain.ErrInvalidUser
		}
		return Outcome{}, domain.NewRemoteError("profile.save", "We could not save your profile. Try again.", err)
	}

	return Outcome{Patch: domain.Data{
		domain.KeyFullName: profile.FullName,
		domain.KeyJobTitle: profile.JobTitle,
		domain.KeyPhone:    profile.Phone,
		domain.KeyTimezone: profile.Timezone,
	}}, nil
}
