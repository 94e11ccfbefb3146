package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"labelline/internal/domain"
	"labelline/internal/engine"
	"labelline/internal/repo"
)

func registerAssets(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-asset",
		Method:        http.MethodPost,
		Path:          "/assets",
		Summary:       "Register asset",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateAssetRequest `json:"body"`
	}) (*struct {
		Body domain.Asset `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CreateAsset(ctx, engine.AssetCreateOptions{
			ID:          input.Body.ID,
			Kind:        input.Body.Kind,
			URL:         input.Body.URL,
			Content:     input.Body.Content,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Project:     input.Body.Project,
			Tags:        input.Body.Tags,
			Priority:    input.Body.Priority,
			ActorID:     principal.UserID,
			ActorRole:   principal.Role,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Asset `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-assets",
		Method:      http.MethodGet,
		Path:        "/assets",
		Summary:     "List assets",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Project   string `query:"project"`
		Status    string `query:"status" enum:"available,claimed,completed,"`
		ClaimedBy string `query:"claimed_by"`
		Limit     int    `query:"limit"`
	}) (*struct {
		Body AssetListResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListAssets(ctx, repo.AssetFilters{
			Project:   input.Project,
			Status:    input.Status,
			ClaimedBy: input.ClaimedBy,
			Limit:     normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssetListResponse `json:"body"`
		}{Body: AssetListResponse{Items: nonNilAssets(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "asset-queue",
		Method:      http.MethodGet,
		Path:        "/assets/queue",
		Summary:     "Next available assets in pickup order",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Project string `query:"project"`
		Limit   int    `query:"limit"`
	}) (*struct {
		Body AssetListResponse `json:"body"`
	}, error) {
		items, err := e.Repo.QueueAssets(ctx, input.Project, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssetListResponse `json:"body"`
		}{Body: AssetListResponse{Items: nonNilAssets(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-asset",
		Method:      http.MethodGet,
		Path:        "/assets/{asset_id}",
		Summary:     "Get asset",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AssetID string `path:"asset_id"`
	}) (*struct {
		Body domain.Asset `json:"body"`
	}, error) {
		a, err := e.Repo.GetAsset(ctx, input.AssetID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Asset `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "claim-asset",
		Method:      http.MethodPost,
		Path:        "/assets/{asset_id}/claim",
		Summary:     "Claim asset",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		AssetID string `path:"asset_id"`
	}) (*struct {
		Body ClaimResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, s, err := e.ClaimAsset(ctx, input.AssetID, principal.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ClaimResponse `json:"body"`
		}{Body: ClaimResponse{Asset: a, Session: s}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "release-asset",
		Method:      http.MethodPost,
		Path:        "/assets/{asset_id}/release",
		Summary:     "Release asset",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		AssetID string `path:"asset_id"`
	}) (*struct {
		Body domain.Asset `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.ReleaseAsset(ctx, input.AssetID, principal.UserID, principal.Privileged())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Asset `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-asset",
		Method:      http.MethodPost,
		Path:        "/assets/{asset_id}/complete",
		Summary:     "Complete asset",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		AssetID string `path:"asset_id"`
	}) (*struct {
		Body domain.Asset `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CompleteAsset(ctx, input.AssetID, principal.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Asset `json:"body"`
		}{Body: a}, nil
	})
}
