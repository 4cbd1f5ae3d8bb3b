package analytics

import (
	"context"
	"time"

	"github.com/sportedge/sportedge-backend/internal/analytics/types"
)

type testSalesService struct {
	last     types.SalesReportRequest
	response *types.SalesReport
	err      error
}

func (s *testSalesService) Report(ctx context.Context, req types.SalesReportRequest) (*types.SalesReport, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	if s.response == nil {
		s.response = &types.SalesReport{}
	}
	return s.response, nil
}

func (s *testSalesService) called() bool {
	return !s.last.Start.IsZero()
}

func (s *testSalesService) period() time.Duration {
	return s.last.End.Sub(s.last.Start)
}
