package analytics

import (
	"net/http"
	"time"

	"github.com/sportedge/sportedge-backend/api/responses"
	"github.com/sportedge/sportedge-backend/internal/analytics/query"
	pkgerrors "github.com/sportedge/sportedge-backend/pkg/errors"
	"github.com/sportedge/sportedge-backend/pkg/logger"
)

// SalesReport serves the admin sales dashboard. A nil service means the
// warehouse is not configured for this deployment.
func SalesReport(service query.SalesService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if service == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "sales analytics not configured"))
			return
		}

		window, err := reportWindow(r.URL.Query(), time.Now().UTC())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		report, err := service.Report(ctx, window)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, report)
	}
}
