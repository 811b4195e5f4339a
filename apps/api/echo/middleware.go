package echoapi

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/sportshub/core/member"
	"github.com/trezcool/sportshub/core/session"
)

// authMiddleware binds the request to the identity's session, opening one (and resolving the role)
// when there is none. Tokens issued before the identity's last logout are refused.
func authMiddleware(resolver *member.Resolver, sessions *session.Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			id := claims.Identity()
			if id.UID == "" {
				return errUnauthorized
			}

			if sess, ok := sessions.Get(id.UID); ok && sessions.Touch(id.UID) {
				ctx.Set(contextSessionKey, sess)
				return next(ctx)
			}
			if sessions.Revoked(id.UID, time.Unix(claims.IssuedAt, 0)) {
				return errSessionExpired
			}

			role, err := resolver.Resolve(ctx.Request().Context(), id)
			if err != nil {
				return errors.Wrap(err, "resolving role")
			}
			ctx.Set(contextSessionKey, sessions.Open(id, role))
			return next(ctx)
		}
	}
}

// requireAction lets the request through when the session's role may do any of actions.
func requireAction(actions ...member.Action) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			sess, err := getContextSession(ctx)
			if err != nil {
				return err
			}
			for _, a := range actions {
				if sess.Role.Can(a) {
					return next(ctx)
				}
			}
			return errHttpForbidden
		}
	}
}
