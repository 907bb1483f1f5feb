package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/feeledger/core"
)

const (
	contextSchoolKey = "school"
	contextActorKey  = "actor"

	// set by the gateway in front of the API; authentication happens there
	headerActorID   = "X-Actor-ID"
	headerActorName = "X-Actor-Name"
)

// schoolMiddleware puts the tenant of the request (the `:school` path param) in the context.
func schoolMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		school := core.CleanString(ctx.Param("school"))
		if school == "" {
			return errHttpNotFound
		}
		ctx.Set(contextSchoolKey, school)
		return next(ctx)
	}
}

func actorMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		req := ctx.Request()
		ctx.Set(contextActorKey, core.Actor{
			ID:   core.CleanString(req.Header.Get(headerActorID)),
			Name: core.CleanString(req.Header.Get(headerActorName)),
		})
		return next(ctx)
	}
}

func ctxSchool(ctx echo.Context) string {
	school, _ := ctx.Get(contextSchoolKey).(string)
	return school
}

func ctxActor(ctx echo.Context) core.Actor {
	actor, _ := ctx.Get(contextActorKey).(core.Actor)
	return actor
}
