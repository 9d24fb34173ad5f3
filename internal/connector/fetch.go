package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hejijunhao/statusreport/internal/model"
)

// FetchPlan runs the adapters of a plan in order. The next adapter runs when
// the previous one failed or reported that its history does not cover the
// whole range.
// Results are concatenated in plan order; duplicates are left for the
// normalizer. An error is returned only if every adapter failed.
func FetchPlan(ctx context.Context, plan []Adapter, req Request, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		out     Result
		errList []error
	)
	for i, a := range plan {
		res, err := a.Fetch(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			logger.Warn("adapter failed", "adapter", a.Kind(), "url", req.URL, "err", err)
			out.Warnings = append(out.Warnings, model.Warning{
				Stage:   "fetch",
				Subject: req.URL,
				Message: fmt.Sprintf("%s adapter: %v", a.Kind(), err),
			})
			errList = append(errList, fmt.Errorf("%s: %w", a.Kind(), err))
			continue
		}

		logger.Info("adapter fetched", "adapter", a.Kind(), "url", req.URL, "incidents", len(res.Incidents))
		out.Incidents = append(out.Incidents, res.Incidents...)
		out.Warnings = append(out.Warnings, res.Warnings...)
		out.LowConfidence = out.LowConfidence || res.LowConfidence

		if i < len(plan)-1 && !res.Covered {
			logger.Debug("history does not reach range start, trying next adapter", "adapter", a.Kind())
			continue
		}
		return out, nil
	}
	if len(out.Incidents) > 0 || len(errList) < len(plan) {
		return out, nil
	}
	return out, errors.Join(errList...)
}
