package http

import (
	"context"
	"net/http"

	"github.com/mkrupp/taskcase-michael/internal/domain"
	context_ "github.com/mkrupp/taskcase-michael/internal/infra/context"
	"github.com/mkrupp/taskcase-michael/internal/infra/logging"
)

// SessionValidator checks a session token taken from a request cookie.
// Returns domain.ErrInvalidSession if the token is not acceptable.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (domain.Session, error)
}

// SessionMiddleware creates middleware that gates handlers behind a valid session.
// It reads the session token from the named cookie and validates it with the
// given SessionValidator. Requests without a valid session are redirected to
// loginURL before the wrapped handler runs. On success, the session is added
// to the request context.
func SessionMiddleware(
	next http.Handler,
	sessions SessionValidator,
	cookieName string,
	loginURL string,
	log logging.Logger,
) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(cookieName)
		if err != nil {
			log.DebugContext(r.Context(), "no session cookie")
			http.Redirect(w, r, loginURL, http.StatusSeeOther)

			return
		}

		session, err := sessions.ValidateSession(r.Context(), cookie.Value)
		if err != nil {
			log.WarnContext(r.Context(), "invalid session", "error", err)
			http.Redirect(w, r, loginURL, http.StatusSeeOther)

			return
		}

		next.ServeHTTP(w, r.WithContext(context_.WithSession(r.Context(), session)))
	})
}
