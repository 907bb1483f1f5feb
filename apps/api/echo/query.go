package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core/fee"
)

type queryApi struct {
	svc *fee.QueryService
}

func registerQueryAPI(g *echo.Group, svc *fee.QueryService) {
	api := queryApi{svc: svc}

	g.GET("/students/:student/balance", api.studentBalance)
	g.GET("/classes/:class/summary", api.classSummary)
}

func (api *queryApi) studentBalance(ctx echo.Context) error {
	bal, err := api.svc.StudentBalance(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("student"))
	if err != nil {
		return errors.Wrap(err, "computing student balance")
	}
	return ctx.JSON(http.StatusOK, bal)
}

func (api *queryApi) classSummary(ctx echo.Context) error {
	sum, err := api.svc.ClassSummary(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("class"))
	if err != nil {
		return errors.Wrap(err, "computing class summary")
	}
	return ctx.JSON(http.StatusOK, sum)
}
