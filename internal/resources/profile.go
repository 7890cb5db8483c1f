package resources

import (
	"context"
	"net/http"

	"turnos-web/internal/domain"
)

type Profile struct {
	api Doer
}

func (p *Profile) Get(ctx context.Context) (domain.UserProfile, error) {
	var out domain.UserProfile
	err := p.api.Do(ctx, http.MethodGet, "/Profile", nil, nil, &out)
	return out, err
}

func (p *Profile) Update(ctx context.Context, req domain.UpdateProfileRequest) (domain.UserProfile, error) {
	var out domain.UserProfile
	err := p.api.Do(ctx, http.MethodPut, "/Profile", nil, req, &out)
	return out, err
}

func (p *Profile) ChangePassword(ctx context.Context, req domain.ChangePasswordRequest) error {
	return p.api.Do(ctx, http.MethodPost, "/Profile/change-password", nil, req, nil)
}
