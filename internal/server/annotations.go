package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"labelline/internal/domain"
	"labelline/internal/engine"
	"labelline/internal/repo"
)

func registerAnnotations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-annotation",
		Method:        http.MethodPost,
		Path:          "/assets/{asset_id}/annotations",
		Summary:       "Add annotation",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		AssetID string                  `path:"asset_id"`
		Body    CreateAnnotationRequest `json:"body"`
	}) (*struct {
		Body domain.Annotation `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ann, err := e.CreateAnnotation(ctx, engine.AnnotationCreateOptions{
			ID:         input.Body.ID,
			AssetID:    input.AssetID,
			Type:       input.Body.Type,
			Label:      input.Body.Label,
			Geometry:   input.Body.Geometry,
			Confidence: input.Body.Confidence,
			Notes:      input.Body.Notes,
			ActorID:    principal.UserID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Annotation `json:"body"`
		}{Body: ann}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-asset-annotations",
		Method:      http.MethodGet,
		Path:        "/assets/{asset_id}/annotations",
		Summary:     "List annotations on an asset",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AssetID        string `path:"asset_id"`
		IncludeDeleted bool   `query:"include_deleted"`
	}) (*struct {
		Body AnnotationListResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetAsset(ctx, input.AssetID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListAnnotations(ctx, repo.AnnotationFilters{
			AssetID:        input.AssetID,
			IncludeDeleted: input.IncludeDeleted,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AnnotationListResponse `json:"body"`
		}{Body: AnnotationListResponse{Items: nonNilAnnotations(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-user-annotations",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/annotations",
		Summary:     "List annotations by a user",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
		Type   string `query:"type"`
		Label  string `query:"label"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body AnnotationListResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListAnnotations(ctx, repo.AnnotationFilters{
			UserID: input.UserID,
			Type:   input.Type,
			Label:  input.Label,
			Limit:  normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AnnotationListResponse `json:"body"`
		}{Body: AnnotationListResponse{Items: nonNilAnnotations(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-annotation",
		Method:      http.MethodGet,
		Path:        "/annotations/{annotation_id}",
		Summary:     "Get annotation with history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AnnotationID string `path:"annotation_id"`
		WithHistory  bool   `query:"with_history"`
	}) (*struct {
		Body domain.Annotation `json:"body"`
	}, error) {
		ann, err := e.GetAnnotation(ctx, input.AnnotationID, input.WithHistory)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Annotation `json:"body"`
		}{Body: ann}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-annotation",
		Method:      http.MethodPut,
		Path:        "/annotations/{annotation_id}",
		Summary:     "Update annotation (optimistic concurrency)",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		AnnotationID string                  `path:"annotation_id"`
		Body         UpdateAnnotationRequest `json:"body"`
	}) (*struct {
		Body domain.Annotation `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ann, err := e.UpdateAnnotation(ctx, engine.AnnotationUpdateOptions{
			ID:              input.AnnotationID,
			ExpectedVersion: input.Body.ExpectedVersion,
			Label:           input.Body.Label,
			Geometry:        input.Body.Geometry,
			Confidence:      input.Body.Confidence,
			Notes:           input.Body.Notes,
			ActorID:         principal.UserID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Annotation `json:"body"`
		}{Body: ann}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-annotation",
		Method:      http.MethodDelete,
		Path:        "/annotations/{annotation_id}",
		Summary:     "Remove annotation (soft delete)",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		AnnotationID string `path:"annotation_id"`
	}) (*struct {
		Body domain.Annotation `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ann, err := e.DeleteAnnotation(ctx, input.AnnotationID, principal.UserID, principal.Privileged())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Annotation `json:"body"`
		}{Body: ann}, nil
	})
}
