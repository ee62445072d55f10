package echoapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/samaecole/backend/core"
)

var (
	orderingParam = "ordering"
	confirmParam  = "confirm"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

func ordering(ctx echo.Context) []core.DBOrdering {
	var ord Ordering
	ord.Bind(ctx)
	return ord.Orderings
}

// requireConfirmation guards destructive endpoints: they must be called with `?confirm=true`.
func requireConfirmation(ctx echo.Context) error {
	if ok, _ := strconv.ParseBool(ctx.QueryParam(confirmParam)); !ok {
		return core.NewFieldError(confirmParam, "Confirmez la suppression avec confirm=true.")
	}
	return nil
}

// attachment sends a generated document as a download.
func attachment(ctx echo.Context, contentType, filename string, b []byte) error {
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return ctx.Blob(http.StatusOK, contentType, b)
}
