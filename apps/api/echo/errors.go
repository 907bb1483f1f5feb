package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
)

var errHttpNotFound = echo.NewHTTPError(http.StatusNotFound, "not found")

func fieldMap(flds []core.FieldError) map[string]string {
	m := make(map[string]string, len(flds))
	for _, f := range flds {
		m[f.Field] = f.Error
	}
	return m
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var (
			code    int
			message interface{}

			httpErr  *echo.HTTPError
			vErrs    validator.ValidationErrors
			valErr   *core.ValidationError
			amtErr   *core.InvalidAmountError
			exceeds  *core.ExceedsDueError
			notFound *core.NotFoundError
			riErr    *core.ReferentialIntegrityError
			paidErr  *core.HasPaymentsError
		)

		switch {
		case errors.As(err, &httpErr):
			if herr, ok := httpErr.Internal.(*echo.HTTPError); ok {
				httpErr = herr
			}
			code = httpErr.Code
			message = httpErr.Message
		case errors.As(err, &vErrs):
			fldErrs := make(map[string]string, len(vErrs))
			for _, vErr := range vErrs {
				fldErrs[vErr.Field()] = vErr.Translate(core.Translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case errors.As(err, &valErr):
			if valErr.Fields != nil {
				message = fieldMap(valErr.Fields)
			} else {
				message = valErr.Error()
			}
			code = http.StatusBadRequest
		case errors.As(err, &amtErr):
			code = http.StatusBadRequest
			message = map[string]string{amtErr.Field: amtErr.Error()}
		case errors.As(err, &exceeds):
			code = http.StatusBadRequest
			message = echo.Map{"error": exceeds.Error(), "due": exceeds.Due}
		case errors.As(err, &notFound):
			code = http.StatusNotFound
			message = notFound.Error()
		case errors.As(err, &riErr):
			code = http.StatusConflict
			message = echo.Map{"error": riErr.Error(), "count": riErr.Count(), "refs": riErr.Refs}
		case errors.As(err, &paidErr):
			code = http.StatusConflict
			message = echo.Map{"error": paidErr.Error(), "paid_amount": paidErr.Paid}
		case core.IsConflict(err):
			code = http.StatusConflict
			message = core.ErrConflict.Error()
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			logger.Error(msg, errors.Wrap(err, msg), ctxActor(ctx), map[string]interface{}{
				"method": ctx.Request().Method,
				"path":   ctx.Request().URL.Path,
			})

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}

			if ctx.Echo().Debug {
				message = err.Error()
			}
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
