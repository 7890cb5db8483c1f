package resources

import (
	"context"
	"net/http"

	"turnos-web/internal/domain"
)

type Auth struct {
	api Doer
}

func (a *Auth) Login(ctx context.Context, req domain.LoginRequest) (domain.AuthResponse, error) {
	var out domain.AuthResponse
	err := a.api.Do(ctx, http.MethodPost, "/Auth/login", nil, req, &out)
	return out, err
}

func (a *Auth) Register(ctx context.Context, req domain.RegisterRequest) (domain.AuthResponse, error) {
	var out domain.AuthResponse
	err := a.api.Do(ctx, http.MethodPost, "/Auth/register", nil, req, &out)
	return out, err
}
