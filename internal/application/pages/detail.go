package pages

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/flowctl/console/internal/domain/flowctl"
	"github.com/flowctl/console/internal/domain/permission"
)

// FlowDetailData is the flow trigger page.
type FlowDetailData struct {
	FlowInputs []flowctl.FlowInput `json:"flowInputs"`
	FlowMeta   *flowctl.FlowMeta   `json:"flowMeta"`
}

// FlowDetail loads the inputs and metadata of req.FlowID in parallel, after
// checking flow view permission.
func (l *Loader) FlowDetail(ctx context.Context, req Request) (*FlowDetailData, error) {
	return load(ctx, l, "flow_detail", req.Namespace, func(ctx context.Context) (*FlowDetailData, error) {
		if err := l.gate(ctx, req, permission.ResourceFlow, msgFlowsDenied); err != nil {
			return nil, err
		}

		var (
			inputs *flowctl.FlowInputs
			meta   *flowctl.FlowMeta
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			inputs, err = l.api.Flows.GetInputs(gctx, req.Namespace, req.FlowID)
			return err
		})
		g.Go(func() error {
			var err error
			meta, err = l.api.Flows.GetMeta(gctx, req.Namespace, req.FlowID)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, l.upstreamFailure(ctx, "Failed to load flow data", req.Namespace, err)
		}

		return &FlowDetailData{
			FlowInputs: nonNil(inputs.Inputs),
			FlowMeta:   meta,
		}, nil
	})
}

// ResultsData is the execution results page.
type ResultsData struct {
	Namespace        string             `json:"namespace"`
	FlowID           string             `json:"flowId"`
	LogID            string             `json:"logId"`
	FlowMeta         *flowctl.FlowMeta  `json:"flowMeta"`
	ExecutionSummary *flowctl.Execution `json:"executionSummary"`
}

// Results loads the flow metadata and the execution summary of req.LogID in
// parallel, after checking execution view permission.
func (l *Loader) Results(ctx context.Context, req Request) (*ResultsData, error) {
	return load(ctx, l, "results", req.Namespace, func(ctx context.Context) (*ResultsData, error) {
		if err := l.gate(ctx, req, permission.ResourceExecution, msgResultsDenied); err != nil {
			return nil, err
		}

		var (
			meta    *flowctl.FlowMeta
			summary *flowctl.Execution
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			meta, err = l.api.Flows.GetMeta(gctx, req.Namespace, req.FlowID)
			return err
		})
		g.Go(func() error {
			var err error
			summary, err = l.api.Executions.GetByID(gctx, req.Namespace, req.LogID)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, l.upstreamFailure(ctx, "Failed to load flow status data", req.Namespace, err)
		}

		return &ResultsData{
			Namespace:        req.Namespace,
			FlowID:           req.FlowID,
			LogID:            req.LogID,
			FlowMeta:         meta,
			ExecutionSummary: summary,
		}, nil
	})
}
