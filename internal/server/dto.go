package server

import (
	"labelline/internal/domain"
	"labelline/internal/hub"
)

type CreateAssetRequest struct {
	ID          string   `json:"id,omitempty"`
	Kind        string   `json:"kind" enum:"image,text"`
	URL         string   `json:"url,omitempty"`
	Content     string   `json:"content,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Project     string   `json:"project,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Priority    int      `json:"priority,omitempty"`
}

// ClaimResponse pairs the claimed asset with the work session it opened.
type ClaimResponse struct {
	Asset   domain.Asset   `json:"asset"`
	Session domain.Session `json:"session"`
}

type AssetListResponse struct {
	Items []domain.Asset `json:"items"`
}

type CreateAnnotationRequest struct {
	ID         string          `json:"id,omitempty"`
	Type       string          `json:"type" enum:"bounding_box,polygon,point,text_label"`
	Label      string          `json:"label"`
	Geometry   domain.Geometry `json:"geometry"`
	Confidence float64         `json:"confidence,omitempty" minimum:"0" maximum:"1"`
	Notes      string          `json:"notes,omitempty"`
}

// UpdateAnnotationRequest replaces the mutable fields; ExpectedVersion is
// the version the caller read before editing.
type UpdateAnnotationRequest struct {
	ExpectedVersion int             `json:"expected_version" minimum:"1"`
	Label           string          `json:"label"`
	Geometry        domain.Geometry `json:"geometry"`
	Confidence      float64         `json:"confidence,omitempty" minimum:"0" maximum:"1"`
	Notes           string          `json:"notes,omitempty"`
}

type AnnotationListResponse struct {
	Items []domain.Annotation `json:"items"`
}

type PresenceResponse struct {
	Users []hub.Presence `json:"users"`
}

type JoinRoomRequest struct {
	AssetID string `json:"asset_id"`
}

type CursorRequest struct {
	AssetID string  `json:"asset_id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

type MeResponse struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Source string `json:"source"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role,omitempty" enum:"annotator,manager,admin"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type EventListResponse struct {
	Items      []domain.Event `json:"items"`
	NextCursor int64          `json:"next_cursor,omitempty"`
}

func nonNilAssets(items []domain.Asset) []domain.Asset {
	if items == nil {
		return []domain.Asset{}
	}
	return items
}

func nonNilAnnotations(items []domain.Annotation) []domain.Annotation {
	if items == nil {
		return []domain.Annotation{}
	}
	return items
}

func nonNilPresence(items []hub.Presence) []hub.Presence {
	if items == nil {
		return []hub.Presence{}
	}
	return items
}
