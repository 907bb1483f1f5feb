package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core/fee"
)

type catalogApi struct {
	svc *fee.CatalogService
}

func registerCatalogAPI(g *echo.Group, svc *fee.CatalogService) {
	api := catalogApi{svc: svc}

	cg := g.Group("/fee-categories")
	cg.POST("", api.createCategory)
	cg.GET("", api.queryCategories)
	cg.GET("/:id", api.retrieveCategory)
	cg.PUT("/:id", api.updateCategory)
	cg.DELETE("/:id", api.destroyCategory)

	tg := g.Group("/fee-types")
	tg.POST("", api.createFeeType)
	tg.GET("", api.queryFeeTypes)
	tg.GET("/:id", api.retrieveFeeType)
	tg.PUT("/:id", api.updateFeeType)
	tg.DELETE("/:id", api.destroyFeeType)

	gg := g.Group("/fee-type-groups")
	gg.POST("", api.createGroup)
	gg.GET("", api.queryGroups)
	gg.GET("/:id", api.retrieveGroup)
	gg.PUT("/:id", api.updateGroup)
	gg.DELETE("/:id", api.destroyGroup)

	pg := g.Group("/installment-plans")
	pg.POST("", api.createPlan)
	pg.GET("", api.queryPlans)
	pg.GET("/:id", api.retrievePlan)
	pg.PUT("/:id", api.updatePlan)
	pg.DELETE("/:id", api.destroyPlan)

	ctg := g.Group("/concession-types")
	ctg.POST("", api.createConcessionType)
	ctg.GET("", api.queryConcessionTypes)
	ctg.GET("/:id", api.retrieveConcessionType)
	ctg.PUT("/:id", api.updateConcessionType)
	ctg.DELETE("/:id", api.destroyConcessionType)

	sg := g.Group("/fee-structures")
	sg.POST("", api.createStructure)
	sg.GET("", api.queryStructures)
	sg.GET("/:id", api.retrieveStructure)
	sg.PUT("/:id", api.updateStructure)
	sg.DELETE("/:id", api.destroyStructure)
}

// Fee categories

func (api *catalogApi) createCategory(ctx echo.Context) error {
	var data fee.NewCategory
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCategory")
	}
	cat, err := api.svc.CreateCategory(ctx.Request().Context(), ctxSchool(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating fee category")
	}
	return ctx.JSON(http.StatusCreated, cat)
}

func (api *catalogApi) queryCategories(ctx echo.Context) error {
	cats, err := api.svc.QueryCategories(ctx.Request().Context(), ctxSchool(ctx))
	if err != nil {
		return errors.Wrap(err, "querying fee categories")
	}
	if cats == nil {
		cats = []fee.Category{}
	}
	return ctx.JSON(http.StatusOK, cats)
}

func (api *catalogApi) retrieveCategory(ctx echo.Context) error {
	cat, err := api.svc.GetCategory(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding fee category by ID")
	}
	return ctx.JSON(http.StatusOK, cat)
}

func (api *catalogApi) updateCategory(ctx echo.Context) error {
	var data fee.UpdateCategory
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCategory")
	}
	cat, err := api.svc.UpdateCategory(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating fee category")
	}
	return ctx.JSON(http.StatusOK, cat)
}

func (api *catalogApi) destroyCategory(ctx echo.Context) error {
	if err := api.svc.DeleteCategory(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting fee category")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Fee types

func (api *catalogApi) createFeeType(ctx echo.Context) error {
	var data fee.NewFeeType
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFeeType")
	}
	ft, err := api.svc.CreateFeeType(ctx.Request().Context(), ctxSchool(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating fee type")
	}
	return ctx.JSON(http.StatusCreated, ft)
}

func (api *catalogApi) queryFeeTypes(ctx echo.Context) error {
	fts, err := api.svc.QueryFeeTypes(ctx.Request().Context(), ctxSchool(ctx))
	if err != nil {
		return errors.Wrap(err, "querying fee types")
	}
	if fts == nil {
		fts = []fee.FeeType{}
	}
	return ctx.JSON(http.StatusOK, fts)
}

func (api *catalogApi) retrieveFeeType(ctx echo.Context) error {
	ft, err := api.svc.GetFeeType(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding fee type by ID")
	}
	return ctx.JSON(http.StatusOK, ft)
}

func (api *catalogApi) updateFeeType(ctx echo.Context) error {
	var data fee.UpdateFeeType
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateFeeType")
	}
	ft, err := api.svc.UpdateFeeType(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating fee type")
	}
	return ctx.JSON(http.StatusOK, ft)
}

func (api *catalogApi) destroyFeeType(ctx echo.Context) error {
	if err := api.svc.DeleteFeeType(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting fee type")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Fee type groups

func (api *catalogApi) createGroup(ctx echo.Context) error {
	var data fee.NewGroup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGroup")
	}
	grp, err := api.svc.CreateGroup(ctx.Request().Context(), ctxSchool(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating fee type group")
	}
	return ctx.JSON(http.StatusCreated, grp)
}

func (api *catalogApi) queryGroups(ctx echo.Context) error {
	grps, err := api.svc.QueryGroups(ctx.Request().Context(), ctxSchool(ctx))
	if err != nil {
		return errors.Wrap(err, "querying fee type groups")
	}
	if grps == nil {
		grps = []fee.Group{}
	}
	return ctx.JSON(http.StatusOK, grps)
}

func (api *catalogApi) retrieveGroup(ctx echo.Context) error {
	grp, err := api.svc.GetGroup(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding fee type group by ID")
	}
	return ctx.JSON(http.StatusOK, grp)
}

func (api *catalogApi) updateGroup(ctx echo.Context) error {
	var data fee.UpdateGroup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateGroup")
	}
	grp, err := api.svc.UpdateGroup(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating fee type group")
	}
	return ctx.JSON(http.StatusOK, grp)
}

func (api *catalogApi) destroyGroup(ctx echo.Context) error {
	if err := api.svc.DeleteGroup(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting fee type group")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Installment plans

func (api *catalogApi) createPlan(ctx echo.Context) error {
	var data fee.NewPlan
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPlan")
	}
	plan, err := api.svc.CreatePlan(ctx.Request().Context(), ctxSchool(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating installment plan")
	}
	return ctx.JSON(http.StatusCreated, plan)
}

func (api *catalogApi) queryPlans(ctx echo.Context) error {
	plans, err := api.svc.QueryPlans(ctx.Request().Context(), ctxSchool(ctx))
	if err != nil {
		return errors.Wrap(err, "querying installment plans")
	}
	if plans == nil {
		plans = []fee.Plan{}
	}
	return ctx.JSON(http.StatusOK, plans)
}

func (api *catalogApi) retrievePlan(ctx echo.Context) error {
	plan, err := api.svc.GetPlan(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding installment plan by ID")
	}
	return ctx.JSON(http.StatusOK, plan)
}

func (api *catalogApi) updatePlan(ctx echo.Context) error {
	var data fee.UpdatePlan
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePlan")
	}
	plan, err := api.svc.UpdatePlan(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating installment plan")
	}
	return ctx.JSON(http.StatusOK, plan)
}

func (api *catalogApi) destroyPlan(ctx echo.Context) error {
	if err := api.svc.DeletePlan(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting installment plan")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Concession types

func (api *catalogApi) createConcessionType(ctx echo.Context) error {
	var data fee.NewConcessionType
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewConcessionType")
	}
	ct, err := api.svc.CreateConcessionType(ctx.Request().Context(), ctxSchool(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating concession type")
	}
	return ctx.JSON(http.StatusCreated, ct)
}

func (api *catalogApi) queryConcessionTypes(ctx echo.Context) error {
	cts, err := api.svc.QueryConcessionTypes(ctx.Request().Context(), ctxSchool(ctx))
	if err != nil {
		return errors.Wrap(err, "querying concession types")
	}
	if cts == nil {
		cts = []fee.ConcessionType{}
	}
	return ctx.JSON(http.StatusOK, cts)
}

func (api *catalogApi) retrieveConcessionType(ctx echo.Context) error {
	ct, err := api.svc.GetConcessionType(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding concession type by ID")
	}
	return ctx.JSON(http.StatusOK, ct)
}

func (api *catalogApi) updateConcessionType(ctx echo.Context) error {
	var data fee.UpdateConcessionType
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateConcessionType")
	}
	ct, err := api.svc.UpdateConcessionType(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating concession type")
	}
	return ctx.JSON(http.StatusOK, ct)
}

func (api *catalogApi) destroyConcessionType(ctx echo.Context) error {
	if err := api.svc.DeleteConcessionType(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting concession type")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Fee structures

func (api *catalogApi) createStructure(ctx echo.Context) error {
	var data fee.NewStructure
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStructure")
	}
	st, err := api.svc.CreateStructure(ctx.Request().Context(), ctxSchool(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating fee structure")
	}
	return ctx.JSON(http.StatusCreated, st)
}

func (api *catalogApi) queryStructures(ctx echo.Context) error {
	sts, err := api.svc.QueryStructures(ctx.Request().Context(), ctxSchool(ctx))
	if err != nil {
		return errors.Wrap(err, "querying fee structures")
	}
	if sts == nil {
		sts = []fee.Structure{}
	}
	return ctx.JSON(http.StatusOK, sts)
}

func (api *catalogApi) retrieveStructure(ctx echo.Context) error {
	st, err := api.svc.GetStructure(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding fee structure by ID")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *catalogApi) updateStructure(ctx echo.Context) error {
	var data fee.UpdateStructure
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStructure")
	}
	st, err := api.svc.UpdateStructure(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating fee structure")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *catalogApi) destroyStructure(ctx echo.Context) error {
	if err := api.svc.DeleteStructure(ctx.Request().Context(), ctxSchool(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting fee structure")
	}
	return ctx.NoContent(http.StatusNoContent)
}
