package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core/fee"
)

type ledgerApi struct {
	assignSvc *fee.AssignmentService
	ledgerSvc *fee.LedgerService
	querySvc  *fee.QueryService
}

func registerLedgerAPI(g *echo.Group, assignSvc *fee.AssignmentService, ledgerSvc *fee.LedgerService, querySvc *fee.QueryService) {
	api := ledgerApi{assignSvc: assignSvc, ledgerSvc: ledgerSvc, querySvc: querySvc}

	g.POST("/assignments", api.assign)

	pg := g.Group("/payments")
	pg.GET("", api.query)

	// detail endpoints
	dg := pg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.edit)
	dg.DELETE("", api.destroy)
	dg.POST("/payments", api.recordPayment)
	dg.POST("/concessions", api.applyConcession)
	dg.GET("/concessions", api.queryConcessions)
	dg.GET("/events", api.queryEvents)
}

// Handlers

func (api *ledgerApi) assign(ctx echo.Context) error {
	var data fee.AssignInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignInput")
	}
	data.Actor = ctxActor(ctx)

	res, err := api.assignSvc.AssignToStudents(ctx.Request().Context(), ctxSchool(ctx), data)
	if err != nil {
		return errors.Wrap(err, "assigning fees")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *ledgerApi) query(ctx echo.Context) error {
	query := new(PaymentQuery)
	if err := ctx.Bind(query); err != nil {
		return ctx.JSON(http.StatusOK, []fee.Payment{})
	}
	filter, err := query.Filter(ctxSchool(ctx))
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx, fee.PaymentOrderings)

	pmts, err := api.querySvc.Payments(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying fee assignments")
	}
	if pmts == nil {
		pmts = []fee.Payment{}
	}
	return ctx.JSON(http.StatusOK, pmts)
}

func (api *ledgerApi) retrieve(ctx echo.Context) error {
	p, err := api.querySvc.Payment(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding fee assignment by ID")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *ledgerApi) edit(ctx echo.Context) error {
	var data fee.EditInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EditInput")
	}
	data.Actor = ctxActor(ctx)

	res, err := api.ledgerSvc.EditAssignment(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "editing fee assignment")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *ledgerApi) destroy(ctx echo.Context) error {
	if err := api.ledgerSvc.DeleteAssignment(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("id"), ctxActor(ctx)); err != nil {
		return errors.Wrap(err, "deleting fee assignment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *ledgerApi) recordPayment(ctx echo.Context) error {
	var data fee.PaymentInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PaymentInput")
	}
	data.Actor = ctxActor(ctx)

	res, err := api.ledgerSvc.RecordPayment(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "recording payment")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *ledgerApi) applyConcession(ctx echo.Context) error {
	var data fee.ConcessionInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ConcessionInput")
	}
	data.Actor = ctxActor(ctx)

	res, err := api.ledgerSvc.ApplyConcession(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "applying concession")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *ledgerApi) queryConcessions(ctx echo.Context) error {
	cs, err := api.querySvc.Concessions(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying concessions")
	}
	if cs == nil {
		cs = []fee.Concession{}
	}
	return ctx.JSON(http.StatusOK, cs)
}

func (api *ledgerApi) queryEvents(ctx echo.Context) error {
	evts, err := api.querySvc.Events(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying ledger events")
	}
	if evts == nil {
		evts = []fee.LedgerEvent{}
	}
	return ctx.JSON(http.StatusOK, evts)
}
