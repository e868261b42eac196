// Package outline implements copy-on-write edits of a presentation outline.
// Every function returns a new value and leaves its input untouched.
package outline

import (
	"fmt"

	"github.com/lamim/deckforge/pkg/models"
)

// Field names an editable slide attribute
type Field string

const (
	FieldTitle        Field = "title"
	FieldBulletPoints Field = "bullet_points"
	FieldLayout       Field = "layout"
	FieldIcon         Field = "icon"
	FieldDataPoints   Field = "data_points"
	FieldNotes        Field = "notes"
)

// Fields lists every editable slide field
var Fields = []Field{FieldTitle, FieldBulletPoints, FieldLayout, FieldIcon, FieldDataPoints, FieldNotes}

// Valid reports whether f is an editable field
func (f Field) Valid() bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

// IndexOutOfRangeError is returned for a slide index outside the outline
type IndexOutOfRangeError struct {
	Index int
	Len   int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("slide index %d out of range (outline has %d slides)", e.Index, e.Len)
}

// ValidationError is returned for an unknown field or a value that does not fit it
type ValidationError struct {
	Field   Field
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// SetTitle returns a copy of o with the outline title replaced. Any string is accepted.
func SetTitle(o models.Outline, title string) models.Outline {
	out := o.Clone()
	out.Title = title
	return out
}

// SetSlideField returns a copy of o where only the given field of slide index
// differs. Accepted value types: string for title, icon and notes; []string
// for bullet points; models.Layout or string for layout; []models.DataPoint
// for data points.
func SetSlideField(o models.Outline, index int, field Field, value interface{}) (models.Outline, error) {
	if index < 0 || index >= len(o.Slides) {
		return models.Outline{}, &IndexOutOfRangeError{Index: index, Len: len(o.Slides)}
	}
	if !field.Valid() {
		return models.Outline{}, &ValidationError{Field: field, Message: "unknown field"}
	}

	out := o.Clone()
	slide := &out.Slides[index]

	switch field {
	case FieldTitle:
		s, err := stringValue(field, value)
		if err != nil {
			return models.Outline{}, err
		}
		slide.Title = s

	case FieldIcon:
		s, err := stringValue(field, value)
		if err != nil {
			return models.Outline{}, err
		}
		slide.Icon = s

	case FieldNotes:
		s, err := stringValue(field, value)
		if err != nil {
			return models.Outline{}, err
		}
		slide.Notes = s

	case FieldBulletPoints:
		bullets, ok := value.([]string)
		if !ok {
			return models.Outline{}, wrongType(field, "[]string", value)
		}
		slide.BulletPoints = append([]string{}, bullets...)

	case FieldLayout:
		var layout models.Layout
		switch v := value.(type) {
		case models.Layout:
			layout = v
		case string:
			layout = models.Layout(v)
		default:
			return models.Outline{}, wrongType(field, "models.Layout or string", value)
		}
		if !layout.Valid() {
			return models.Outline{}, &ValidationError{Field: field, Message: fmt.Sprintf("unknown layout %q", layout)}
		}
		slide.Layout = layout

	case FieldDataPoints:
		points, ok := value.([]models.DataPoint)
		if !ok {
			return models.Outline{}, wrongType(field, "[]models.DataPoint", value)
		}
		// Clone through a throwaway slide so the caller's slice is not shared
		slide.DataPoints = models.Slide{DataPoints: points}.Clone().DataPoints
	}

	return out, nil
}

// InsertSlide returns a copy of o with slide inserted before position index.
// index == len(o.Slides) appends.
func InsertSlide(o models.Outline, index int, slide models.Slide) (models.Outline, error) {
	if index < 0 || index > len(o.Slides) {
		return models.Outline{}, &IndexOutOfRangeError{Index: index, Len: len(o.Slides)}
	}
	if slide.Layout == "" {
		slide.Layout = models.LayoutBullets
	}
	if !slide.Layout.Valid() {
		return models.Outline{}, &ValidationError{Field: FieldLayout, Message: fmt.Sprintf("unknown layout %q", slide.Layout)}
	}
	if slide.BulletPoints == nil {
		slide.BulletPoints = []string{}
	}

	out := o.Clone()
	slides := make([]models.Slide, 0, len(out.Slides)+1)
	slides = append(slides, out.Slides[:index]...)
	slides = append(slides, slide.Clone())
	slides = append(slides, out.Slides[index:]...)
	out.Slides = slides
	return out, nil
}

// DeleteSlide returns a copy of o without the slide at index
func DeleteSlide(o models.Outline, index int) (models.Outline, error) {
	if index < 0 || index >= len(o.Slides) {
		return models.Outline{}, &IndexOutOfRangeError{Index: index, Len: len(o.Slides)}
	}

	out := o.Clone()
	slides := make([]models.Slide, 0, len(out.Slides)-1)
	slides = append(slides, out.Slides[:index]...)
	slides = append(slides, out.Slides[index+1:]...)
	out.Slides = slides
	return out, nil
}

// MoveSlide returns a copy of o with the slide at from moved to position to
func MoveSlide(o models.Outline, from, to int) (models.Outline, error) {
	if from < 0 || from >= len(o.Slides) {
		return models.Outline{}, &IndexOutOfRangeError{Index: from, Len: len(o.Slides)}
	}
	if to < 0 || to >= len(o.Slides) {
		return models.Outline{}, &IndexOutOfRangeError{Index: to, Len: len(o.Slides)}
	}

	moved := o.Slides[from]
	out, err := DeleteSlide(o, from)
	if err != nil {
		return models.Outline{}, err
	}
	return InsertSlide(out, to, moved)
}

func stringValue(field Field, value interface{}) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", wrongType(field, "string", value)
	}
	return s, nil
}

func wrongType(field Field, want string, got interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf("expected %s, got %T", want, got)}
}
