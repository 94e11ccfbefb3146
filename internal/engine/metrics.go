package engine

import (
	"context"

	"labelline/internal/domain"
)

type UserMetrics struct {
	UserID           string  `json:"user_id"`
	TasksCompleted   int     `json:"tasks_completed"`
	TasksInProgress  int     `json:"tasks_in_progress"`
	TasksAbandoned   int     `json:"tasks_abandoned"`
	Annotations      int     `json:"annotations"`
	TotalTimeMS      int64   `json:"total_time_ms"`
	AvgTimePerTaskMS int64   `json:"avg_time_per_task_ms"`
	CompletionRate   float64 `json:"completion_rate"`
	AnnotationsPerHr float64 `json:"annotations_per_hour"`
}

func (e Engine) UserMetrics(ctx context.Context, userID string) (UserMetrics, error) {
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return UserMetrics{}, err
	}
	stats, err := e.Repo.UserSessionStats(ctx, userID)
	if err != nil {
		return UserMetrics{}, err
	}
	annotations, err := e.Repo.CountAnnotationsByUser(ctx, userID)
	if err != nil {
		return UserMetrics{}, err
	}
	m := UserMetrics{
		UserID:          userID,
		TasksCompleted:  stats.Completed,
		TasksInProgress: stats.InProgress,
		TasksAbandoned:  stats.Abandoned,
		Annotations:     annotations,
		TotalTimeMS:     stats.TotalTimeMS,
	}
	if stats.Completed > 0 {
		m.AvgTimePerTaskMS = stats.TotalTimeMS / int64(stats.Completed)
	}
	if closed := stats.Completed + stats.Abandoned; closed > 0 {
		m.CompletionRate = float64(stats.Completed) / float64(closed)
	}
	if stats.TotalTimeMS > 0 {
		m.AnnotationsPerHr = float64(annotations) / (float64(stats.TotalTimeMS) / 3600000.0)
	}
	return m, nil
}

type DashboardMetrics struct {
	Assets        map[string]int `json:"assets"`
	Annotations   int            `json:"annotations"`
	ActiveUsers   int            `json:"active_users"`
	TopAnnotators []domain.User  `json:"top_annotators"`
}

func (e Engine) DashboardMetrics(ctx context.Context) (DashboardMetrics, error) {
	assets, err := e.Repo.CountAssetsByStatus(ctx, "")
	if err != nil {
		return DashboardMetrics{}, err
	}
	annotations, err := e.Repo.CountAnnotations(ctx, "")
	if err != nil {
		return DashboardMetrics{}, err
	}
	users, err := e.Repo.CountActiveUsers(ctx)
	if err != nil {
		return DashboardMetrics{}, err
	}
	top, err := e.Repo.TopAnnotators(ctx, 5)
	if err != nil {
		return DashboardMetrics{}, err
	}
	return DashboardMetrics{
		Assets:        assets,
		Annotations:   annotations,
		ActiveUsers:   users,
		TopAnnotators: top,
	}, nil
}

type ProjectMetrics struct {
	Project             string         `json:"project"`
	Assets              map[string]int `json:"assets"`
	CompletionRate      float64        `json:"completion_rate"`
	Annotations         int            `json:"annotations"`
	AnnotationsPerAsset float64        `json:"annotations_per_completed_asset"`
	AvgCompletionTimeMS int64          `json:"avg_completion_time_ms"`
}

func (e Engine) ProjectMetrics(ctx context.Context, project string) (ProjectMetrics, error) {
	assets, err := e.Repo.CountAssetsByStatus(ctx, project)
	if err != nil {
		return ProjectMetrics{}, err
	}
	annotations, err := e.Repo.CountAnnotations(ctx, project)
	if err != nil {
		return ProjectMetrics{}, err
	}
	avg, err := e.Repo.AvgCompletionTimeMS(ctx, project)
	if err != nil {
		return ProjectMetrics{}, err
	}
	m := ProjectMetrics{
		Project:             project,
		Assets:              assets,
		Annotations:         annotations,
		AvgCompletionTimeMS: avg,
	}
	total := 0
	for _, n := range assets {
		total += n
	}
	completed := assets[domain.AssetCompleted]
	if total > 0 {
		m.CompletionRate = float64(completed) / float64(total)
	}
	if completed > 0 {
		m.AnnotationsPerAsset = float64(annotations) / float64(completed)
	}
	return m, nil
}
