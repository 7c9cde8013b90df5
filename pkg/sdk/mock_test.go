package contextd

import (
	"context"

	"github.com/meridian-cloud/contextd/internal/domain"
	aggregatoruc "github.com/meridian-cloud/contextd/internal/usecase/aggregator"
	healthuc "github.com/meridian-cloud/contextd/internal/usecase/health"
)

type mockPipeline struct {
	result domain.Result
	agg    aggregatoruc.AggregatedContext
	aggErr error

	gotHandle  *domain.Request
	gotContext *domain.Request
}

func (m *mockPipeline) Handle(_ context.Context, req domain.Request) domain.Result {
	m.gotHandle = &req
	return m.result
}

func (m *mockPipeline) GetMemoryContext(_ context.Context, req domain.Request) (aggregatoruc.AggregatedContext, error) {
	m.gotContext = &req
	if m.aggErr != nil {
		return aggregatoruc.AggregatedContext{}, m.aggErr
	}
	return m.agg, nil
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(_ context.Context) healthuc.Report {
	return m.report
}

func newTestClient(p pipelineUseCase, h healthUseCase) *Client {
	return &Client{pipeline: p, healthSvc: h}
}

func healthReport(status string, checks map[string]string) healthuc.Report {
	r := healthuc.Report{
		Status: healthuc.Status(status),
		Checks: make(map[string]healthuc.CheckResult, len(checks)),
	}
	for k, v := range checks {
		r.Checks[k] = healthuc.CheckResult(v)
	}
	return r
}
