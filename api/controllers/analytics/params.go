package analytics

import (
	"net/url"
	"strings"
	"time"

	"github.com/sportedge/sportedge-backend/internal/analytics/types"
	pkgerrors "github.com/sportedge/sportedge-backend/pkg/errors"
)

const day = 24 * time.Hour

var presets = map[string]time.Duration{
	"7d":   7 * day,
	"30d":  30 * day,
	"90d":  90 * day,
	"365d": 365 * day,
}

// reportWindow turns the query into a report range. An explicit from/to pair
// wins; otherwise a preset (default 30d) ending at now is used.
func reportWindow(query url.Values, now time.Time) (types.SalesReportRequest, error) {
	from, to := strings.TrimSpace(query.Get("from")), strings.TrimSpace(query.Get("to"))
	if from == "" && to == "" {
		name := strings.ToLower(strings.TrimSpace(query.Get("preset")))
		if name == "" {
			name = "30d"
		}
		span, ok := presets[name]
		if !ok {
			return types.SalesReportRequest{}, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown preset %q", name)
		}
		return types.SalesReportRequest{Start: now.Add(-span), End: now}, nil
	}
	if from == "" || to == "" {
		return types.SalesReportRequest{}, pkgerrors.New(pkgerrors.CodeValidation, "from and to must be provided together")
	}

	start, err := parseInstant(from, false)
	if err != nil {
		return types.SalesReportRequest{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid from")
	}
	end, err := parseInstant(to, true)
	if err != nil {
		return types.SalesReportRequest{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid to")
	}
	if end.Before(start) {
		return types.SalesReportRequest{}, pkgerrors.New(pkgerrors.CodeValidation, "to must not precede from")
	}
	return types.SalesReportRequest{Start: start, End: end}, nil
}

// parseInstant takes RFC3339 or YYYY-MM-DD. A bare date used as an upper
// bound stretches to the last nanosecond of that day.
func parseInstant(value string, upper bool) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}
	date, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, err
	}
	if upper {
		date = date.Add(day - time.Nanosecond)
	}
	return date, nil
}
