package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"labelline/internal/engine"
)

func registerMetrics(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "user-metrics",
		Method:      http.MethodGet,
		Path:        "/metrics/users/{user_id}",
		Summary:     "Per-user productivity metrics",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body engine.UserMetrics `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		// Annotators can only read their own numbers.
		if input.UserID != principal.UserID && !principal.Privileged() {
			return nil, handleError(engine.ForbiddenError{Reason: "metrics for other users require a manager or admin role"})
		}
		m, err := e.UserMetrics(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.UserMetrics `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dashboard-metrics",
		Method:      http.MethodGet,
		Path:        "/metrics/dashboard",
		Summary:     "Workspace-wide dashboard metrics",
		Errors: []int{
			http.StatusForbidden,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.DashboardMetrics `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if !principal.Privileged() {
			return nil, handleError(engine.ForbiddenError{Reason: "dashboard metrics require a manager or admin role"})
		}
		m, err := e.DashboardMetrics(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.DashboardMetrics `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-metrics",
		Method:      http.MethodGet,
		Path:        "/metrics/projects/{project}",
		Summary:     "Per-project progress metrics",
	}, func(ctx context.Context, input *struct {
		Project string `path:"project"`
	}) (*struct {
		Body engine.ProjectMetrics `json:"body"`
	}, error) {
		m, err := e.ProjectMetrics(ctx, input.Project)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ProjectMetrics `json:"body"`
		}{Body: m}, nil
	})
}
