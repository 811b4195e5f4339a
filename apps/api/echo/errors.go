package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/sportshub/core"
	"github.com/trezcool/sportshub/core/member"
)

var (
	errUnauthorized   = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errSessionExpired = echo.NewHTTPError(http.StatusUnauthorized, "session expired, please sign in again")
	errHttpForbidden  = echo.NewHTTPError(http.StatusForbidden, "permission denied")
)

type partialWriteResponse struct {
	Error  string            `json:"error"`
	Done   []string          `json:"done"`
	Failed map[string]string `json:"failed"`
}

func newPartialWriteResponse(err *core.PartialWriteError) partialWriteResponse {
	failed := make(map[string]string, len(err.Failed))
	for k, e := range err.Failed {
		failed[k] = e.Error()
	}
	done := err.Done
	if done == nil {
		done = []string{}
	}
	return partialWriteResponse{Error: "partially applied", Done: done, Failed: failed}
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var (
			code    int
			message interface{}

			httpErr  *echo.HTTPError
			valErr   *core.ValidationError
			valErrs  validator.ValidationErrors
			conflict *core.ConflictError
			partial  *core.PartialWriteError
			storeErr *core.StoreError
		)

		switch {
		case errors.As(err, &httpErr):
			if httpErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = httpErr.Message
				break
			}
			if herr, ok := httpErr.Internal.(*echo.HTTPError); ok {
				httpErr = herr
			}
			code = httpErr.Code
			message = httpErr.Message
		case errors.As(err, &valErr):
			if len(valErr.Fields) > 0 {
				fldErrs := make(map[string]string, len(valErr.Fields))
				for _, fErr := range valErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = valErr.Error()
			}
			code = http.StatusBadRequest
		case errors.As(err, &valErrs):
			fldErrs := make(map[string]string, len(valErrs))
			for _, vErr := range valErrs {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case core.IsNotFound(err):
			code = http.StatusNotFound
			message = "not found"
		case errors.As(err, &conflict):
			code = http.StatusConflict
			message = conflict.Error()
		case errors.As(err, &partial):
			code = http.StatusMultiStatus
			message = newPartialWriteResponse(partial)
		case errors.As(err, &storeErr):
			code = http.StatusServiceUnavailable
			message = "the data store is unavailable, please retry"
			logger.Error(storeErr.Error(), err, contextIdentity(ctx))
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg
			logger.Error(msg, errors.Wrap(err, msg), contextIdentity(ctx))

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code >= http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

func contextIdentity(ctx echo.Context) member.Identity {
	if sess, err := getContextSession(ctx); err == nil {
		return sess.Identity
	}
	if claims, err := getContextClaims(ctx); err == nil {
		return claims.Identity()
	}
	return member.Identity{}
}
