package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/sportshub/core/member"
	"github.com/trezcool/sportshub/core/session"
	"github.com/trezcool/sportshub/services/realtime"
)

type MeResponse struct {
	Session session.Session `json:"session"`
	Actions []member.Action `json:"actions"`
}

type sessionApi struct {
	sessions *session.Manager
}

func registerSessionAPI(g *echo.Group, sessions *session.Manager) {
	api := sessionApi{sessions: sessions}

	g.GET("/me", api.me)
	g.POST("/logout", api.logout) // even unknown roles may log out
}

func (api *sessionApi) me(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, MeResponse{Session: sess, Actions: sess.Role.Actions()})
}

func (api *sessionApi) logout(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	api.sessions.Close(sess.Identity.UID, session.ReasonLogout)
	return ctx.NoContent(http.StatusNoContent)
}

func registerRealtimeAPI(g *echo.Group, hub *realtime.Hub, m ...echo.MiddlewareFunc) {
	g.GET("/ws", func(ctx echo.Context) error {
		sess, err := getContextSession(ctx)
		if err != nil {
			return err
		}
		// a failed handshake is answered by the upgrader itself
		if err = hub.Serve(ctx.Response(), ctx.Request(), sess); err != nil && !ctx.Response().Committed {
			return err
		}
		return nil
	}, m...)
}
