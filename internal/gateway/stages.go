package gateway

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"turnos-web/internal/logging"
	"turnos-web/internal/session"
)

// RequestStage transforms an outbound request before it is sent.
type RequestStage func(req *http.Request) error

// ResponseStage observes a response before it is decoded. A non-nil error
// aborts the call with that error.
type ResponseStage func(resp *http.Response) error

type TokenResolver interface {
	Resolve(ctx context.Context) (string, error)
}

// IsAuthPath reports whether path belongs to the login/register endpoints,
// which never trigger the unauthorized policy.
func IsAuthPath(path string) bool {
	return strings.Contains(path, "/Auth/")
}

// BearerStage attaches the current credential. When there is none the
// Authorization header is removed so no stale credential leaks through.
func BearerStage(tokens TokenResolver, log *zap.Logger) RequestStage {
	if log == nil {
		log = zap.NewNop()
	}
	return func(req *http.Request) error {
		raw, err := tokens.Resolve(req.Context())
		if err != nil {
			return err
		}
		tok := session.StripBearer(raw)
		if tok == "" {
			req.Header.Del("Authorization")
			if !IsAuthPath(req.URL.Path) {
				log.Debug("no token for request", zap.String("path", req.URL.Path))
			}
			return nil
		}
		session.OAuthToken(tok).SetAuthHeader(req)
		if !IsAuthPath(req.URL.Path) {
			log.Debug("token attached",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				logging.Token(tok))
		}
		return nil
	}
}

// UnauthorizedStage hands 401 responses of non-auth endpoints to policy.
func UnauthorizedStage(policy *LogoutPolicy) ResponseStage {
	return func(resp *http.Response) error {
		if resp.StatusCode != http.StatusUnauthorized || resp.Request == nil {
			return nil
		}
		if IsAuthPath(resp.Request.URL.Path) {
			return nil
		}
		policy.Handle(resp.Request.Header.Get("Authorization") != "")
		return nil
	}
}
