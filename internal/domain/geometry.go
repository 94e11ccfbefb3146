package domain

import "fmt"

// Validate checks that the geometry carries exactly the variant required by
// the annotation type and that the variant's coordinates are well formed.
func (g Geometry) Validate(annotationType string) error {
	set := 0
	if g.Box != nil {
		set++
	}
	if g.Polygon != nil {
		set++
	}
	if g.Point != nil {
		set++
	}
	if g.TextSpan != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("geometry must carry exactly one variant, got %d", set)
	}
	switch annotationType {
	case TypeBoundingBox:
		if g.Box == nil {
			return fmt.Errorf("type %s requires a box geometry", annotationType)
		}
		if g.Box.Width <= 0 || g.Box.Height <= 0 {
			return fmt.Errorf("box width and height must be positive")
		}
	case TypePolygon:
		if g.Polygon == nil {
			return fmt.Errorf("type %s requires a polygon geometry", annotationType)
		}
		if len(g.Polygon.Points) < 3 {
			return fmt.Errorf("polygon requires at least 3 points, got %d", len(g.Polygon.Points))
		}
	case TypePoint:
		if g.Point == nil {
			return fmt.Errorf("type %s requires a point geometry", annotationType)
		}
	case TypeTextLabel:
		if g.TextSpan == nil {
			return fmt.Errorf("type %s requires a text_span geometry", annotationType)
		}
		if g.TextSpan.Start < 0 || g.TextSpan.End <= g.TextSpan.Start {
			return fmt.Errorf("text span must satisfy 0 <= start < end")
		}
	default:
		return fmt.Errorf("unknown annotation type %q", annotationType)
	}
	return nil
}
