package outline

import (
	"fmt"
	"reflect"

	"github.com/lamim/deckforge/pkg/models"
)

// ChangeKind classifies one difference between two outlines
type ChangeKind string

const (
	ChangeModified ChangeKind = "modified"
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
)

// Change is a single difference. Slide is -1 for the outline title.
// Field is empty for added and removed slides.
type Change struct {
	Kind  ChangeKind
	Slide int
	Field Field
	Old   interface{}
	New   interface{}
}

func (c Change) String() string {
	switch {
	case c.Slide < 0:
		return fmt.Sprintf("title: %q -> %q", c.Old, c.New)
	case c.Kind == ChangeAdded:
		return fmt.Sprintf("slide %d: added", c.Slide)
	case c.Kind == ChangeRemoved:
		return fmt.Sprintf("slide %d: removed", c.Slide)
	default:
		return fmt.Sprintf("slide %d %s: %v -> %v", c.Slide, c.Field, c.Old, c.New)
	}
}

// Diff lists field-level differences from a to b, comparing slides by position
func Diff(a, b models.Outline) []Change {
	var changes []Change

	if a.Title != b.Title {
		changes = append(changes, Change{Kind: ChangeModified, Slide: -1, Field: FieldTitle, Old: a.Title, New: b.Title})
	}

	n := max(len(a.Slides), len(b.Slides))
	for i := 0; i < n; i++ {
		switch {
		case i >= len(a.Slides):
			changes = append(changes, Change{Kind: ChangeAdded, Slide: i, New: b.Slides[i]})
		case i >= len(b.Slides):
			changes = append(changes, Change{Kind: ChangeRemoved, Slide: i, Old: a.Slides[i]})
		default:
			changes = append(changes, diffSlide(i, a.Slides[i], b.Slides[i])...)
		}
	}

	return changes
}

func diffSlide(index int, a, b models.Slide) []Change {
	var changes []Change
	for _, f := range Fields {
		old, cur := fieldValue(a, f), fieldValue(b, f)
		if !equalValues(old, cur) {
			changes = append(changes, Change{Kind: ChangeModified, Slide: index, Field: f, Old: old, New: cur})
		}
	}
	return changes
}

func fieldValue(s models.Slide, f Field) interface{} {
	switch f {
	case FieldTitle:
		return s.Title
	case FieldBulletPoints:
		return s.BulletPoints
	case FieldLayout:
		return s.Layout
	case FieldIcon:
		return s.Icon
	case FieldDataPoints:
		return s.DataPoints
	case FieldNotes:
		return s.Notes
	default:
		return nil
	}
}

// equalValues treats nil and empty slices as equal
func equalValues(a, b interface{}) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() == reflect.Slice && vb.Kind() == reflect.Slice && va.Len() == 0 && vb.Len() == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
