package domain

// Asset lifecycle statuses.
const (
	AssetAvailable = "available"
	AssetClaimed   = "claimed"
	AssetCompleted = "completed"
)

// Annotation types.
const (
	TypeBoundingBox = "bounding_box"
	TypePolygon     = "polygon"
	TypePoint       = "point"
	TypeTextLabel   = "text_label"
)

// Session statuses.
const (
	SessionInProgress = "in_progress"
	SessionCompleted  = "completed"
	SessionAbandoned  = "abandoned"
)

// Annotation history actions.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

type Asset struct {
	ID          string   `json:"id"`
	Kind        string   `json:"kind" enum:"image,text"`
	URL         string   `json:"url,omitempty"`
	Content     string   `json:"content,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Project     string   `json:"project"`
	Tags        []string `json:"tags,omitempty"`
	Priority    int      `json:"priority"`
	Status      string   `json:"status" enum:"available,claimed,completed"`
	ClaimedBy   *string  `json:"claimed_by,omitempty"`
	ClaimedAt   *string  `json:"claimed_at,omitempty" format:"date-time"`
	CompletedBy *string  `json:"completed_by,omitempty"`
	CompletedAt *string  `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type BoxGeometry struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type PointGeometry struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type PolygonGeometry struct {
	Points []PointGeometry `json:"points"`
}

// TextSpanGeometry is a half-open [start,end) rune range into a text asset.
type TextSpanGeometry struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Geometry is a tagged union keyed by the annotation type; exactly one
// variant is set for a valid annotation.
type Geometry struct {
	Box      *BoxGeometry      `json:"box,omitempty"`
	Polygon  *PolygonGeometry  `json:"polygon,omitempty"`
	Point    *PointGeometry    `json:"point,omitempty"`
	TextSpan *TextSpanGeometry `json:"text_span,omitempty"`
}

type Annotation struct {
	ID             string         `json:"id"`
	AssetID        string         `json:"asset_id"`
	UserID         string         `json:"user_id"`
	Type           string         `json:"type" enum:"bounding_box,polygon,point,text_label"`
	Label          string         `json:"label"`
	Geometry       Geometry       `json:"geometry"`
	Confidence     float64        `json:"confidence"`
	Notes          string         `json:"notes,omitempty"`
	Version        int            `json:"version"`
	LastModifiedBy *string        `json:"last_modified_by,omitempty"`
	IsDeleted      bool           `json:"is_deleted"`
	History        []HistoryEntry `json:"history,omitempty"`
	CreatedAt      string         `json:"created_at" format:"date-time"`
	UpdatedAt      string         `json:"updated_at" format:"date-time"`
}

// HistoryEntry records one accepted annotation mutation. Entries are
// insertion-ordered and never rewritten.
type HistoryEntry struct {
	ID      int64  `json:"id"`
	ActorID string `json:"actor_id"`
	Action  string `json:"action" enum:"created,updated,deleted"`
	TS      string `json:"ts" format:"date-time"`
	Changes string `json:"changes_json,omitempty"`
}

// Session is one work episode bound to a claim: opened when the claim
// succeeds, closed by completion or abandonment.
type Session struct {
	ID          string  `json:"id"`
	AssetID     string  `json:"asset_id"`
	UserID      string  `json:"user_id"`
	Status      string  `json:"status" enum:"in_progress,completed,abandoned"`
	StartedAt   string  `json:"started_at" format:"date-time"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
	AbandonedAt *string `json:"abandoned_at,omitempty" format:"date-time"`
	TimeSpentMS int64   `json:"time_spent_ms"`
}

type User struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Email              string `json:"email,omitempty"`
	Role               string `json:"role" enum:"annotator,manager,admin"`
	IsActive           bool   `json:"is_active"`
	TasksCompleted     int    `json:"tasks_completed"`
	AnnotationsCreated int    `json:"annotations_created"`
	TotalTimeMS        int64  `json:"total_time_ms"`
	CreatedAt          string `json:"created_at" format:"date-time"`
}

// Privileged reports whether the role may act on work it does not own.
func (u User) Privileged() bool {
	return u.Role == "admin" || u.Role == "manager"
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	Project    string `json:"project,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
