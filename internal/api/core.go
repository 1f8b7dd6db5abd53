package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ipscope/ipscope/internal/iputil"
	"github.com/ipscope/ipscope/internal/task"
	"github.com/ipscope/ipscope/pkg/types"
)

// submitTaskCore validates the submission, registers the task and starts
// its runner detached. The runner outlives the request, so it runs under a
// background context rather than the request's.
func (a *App) submitTaskCore(req types.SubmitRequest) (types.SubmitResponse, int, error) {
	ips := iputil.Parse(req.IPs)
	if len(ips) == 0 {
		return types.SubmitResponse{}, http.StatusBadRequest, fmt.Errorf("no valid IP addresses in input")
	}

	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = a.cfg.Providers.Abuse.APIKey
	}

	t, err := a.registry.Submit(ips, apiKey)
	if err != nil {
		code := http.StatusBadRequest
		if !errors.Is(err, task.ErrInvalidInput) {
			code = http.StatusTooManyRequests
		}
		return types.SubmitResponse{}, code, err
	}

	go a.runner.Run(context.Background(), t)

	snap := t.Snapshot()
	a.logger.Info("task submitted", "task_id", snap.ID, "ip_count", snap.IPCount)
	return types.SubmitResponse{
		TaskID:     snap.ID,
		IPCount:    snap.IPCount,
		IPVersions: snap.IPVersions,
	}, http.StatusCreated, nil
}

func (a *App) resultsCore(id string) ([]types.AnalysisRecord, int, error) {
	records, err := a.registry.Results(id)
	if err != nil {
		switch {
		case errors.Is(err, task.ErrNotFound):
			return nil, http.StatusNotFound, fmt.Errorf("task not found")
		case errors.Is(err, task.ErrNotReady):
			return nil, http.StatusConflict, err
		default:
			return nil, http.StatusInternalServerError, err
		}
	}
	return records, http.StatusOK, nil
}

func (a *App) cancelTaskCore(id string) (map[string]any, int, error) {
	flagged, err := a.registry.Cancel(id)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			return nil, http.StatusNotFound, fmt.Errorf("task not found")
		}
		return nil, http.StatusInternalServerError, err
	}
	snap, err := a.registry.Snapshot(id)
	if err != nil {
		return nil, http.StatusNotFound, fmt.Errorf("task not found")
	}
	if flagged {
		a.logger.Info("task cancel requested", "task_id", id)
	}
	return map[string]any{
		"cancelled": flagged,
		"status":    snap.Status,
	}, http.StatusOK, nil
}
