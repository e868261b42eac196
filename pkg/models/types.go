package models

import (
	"encoding/json"
	"fmt"
)

// Layout is the rendering layout requested for a slide
type Layout string

const (
	LayoutTitle        Layout = "title"
	LayoutBullets      Layout = "bullets"
	LayoutColumn       Layout = "column"
	LayoutProcess      Layout = "process"
	LayoutColumnChart  Layout = "column_chart"
	LayoutBarChart     Layout = "bar_chart"
	LayoutLineChart    Layout = "line_chart"
	LayoutPieChart     Layout = "pie_chart"
	LayoutAreaChart    Layout = "area_chart"
	LayoutStackedChart Layout = "stacked_chart"
	LayoutTimeline     Layout = "timeline"
	LayoutBigNumber    Layout = "big_number"
	LayoutThanks       Layout = "thanks"
)

// Layouts lists every accepted layout in declaration order
var Layouts = []Layout{
	LayoutTitle, LayoutBullets, LayoutColumn, LayoutProcess,
	LayoutColumnChart, LayoutBarChart, LayoutLineChart, LayoutPieChart,
	LayoutAreaChart, LayoutStackedChart, LayoutTimeline, LayoutBigNumber,
	LayoutThanks,
}

// Valid reports whether l is one of the known layouts
func (l Layout) Valid() bool {
	for _, known := range Layouts {
		if l == known {
			return true
		}
	}
	return false
}

// ParseLayout converts a string into a Layout, rejecting unknown values
func ParseLayout(s string) (Layout, error) {
	l := Layout(s)
	if !l.Valid() {
		return "", fmt.Errorf("unknown layout %q", s)
	}
	return l, nil
}

// UnmarshalJSON rejects layouts outside the closed set. An empty string maps to
// LayoutBullets, which is what the backend assumes when the field is missing.
func (l *Layout) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("layout must be a string: %w", err)
	}
	if s == "" {
		*l = LayoutBullets
		return nil
	}
	parsed, err := ParseLayout(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// UnmarshalYAML mirrors UnmarshalJSON for hand-edited outline files
func (l *Layout) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		*l = LayoutBullets
		return nil
	}
	parsed, err := ParseLayout(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// DataPoint is one chart/comparison datum. Only label and value are named; any
// other keys (e.g. "series" for stacked charts) are kept in Extra untouched.
type DataPoint struct {
	Label string
	Value interface{}
	Extra map[string]interface{}
}

// MarshalJSON flattens Extra back next to label and value
func (d DataPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.toMap())
}

// UnmarshalJSON accepts any JSON object
func (d *DataPoint) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("data point must be an object: %w", err)
	}
	d.fromMap(raw)
	return nil
}

// MarshalYAML flattens Extra back next to label and value
func (d DataPoint) MarshalYAML() (interface{}, error) {
	return d.toMap(), nil
}

// UnmarshalYAML accepts any mapping
func (d *DataPoint) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw map[string]interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	d.fromMap(raw)
	return nil
}

func (d DataPoint) toMap() map[string]interface{} {
	m := make(map[string]interface{}, len(d.Extra)+2)
	for k, v := range d.Extra {
		m[k] = v
	}
	if d.Label != "" {
		m["label"] = d.Label
	}
	if d.Value != nil {
		m["value"] = d.Value
	}
	return m
}

// fromMap keeps anything Label and Value cannot hold verbatim (a non-string
// or empty label, a null value) in Extra so toMap writes it back unchanged
func (d *DataPoint) fromMap(raw map[string]interface{}) {
	*d = DataPoint{}
	for k, v := range raw {
		switch k {
		case "label":
			if s, ok := v.(string); ok && s != "" {
				d.Label = s
				continue
			}
		case "value":
			if v != nil {
				d.Value = v
				continue
			}
		}
		if d.Extra == nil {
			d.Extra = make(map[string]interface{})
		}
		d.Extra[k] = v
	}
}

// Slide is a single presentation unit inside an Outline
type Slide struct {
	Title        string      `json:"title" yaml:"title"`
	BulletPoints []string    `json:"bullet_points" yaml:"bullet_points"`
	Layout       Layout      `json:"layout" yaml:"layout"`
	Icon         string      `json:"icon,omitempty" yaml:"icon,omitempty"`
	DataPoints   []DataPoint `json:"data_points,omitempty" yaml:"data_points,omitempty"`
	Notes        string      `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Clone returns a deep copy of the slide
func (s Slide) Clone() Slide {
	out := s
	if s.BulletPoints != nil {
		out.BulletPoints = append([]string{}, s.BulletPoints...)
	}
	if s.DataPoints != nil {
		out.DataPoints = make([]DataPoint, len(s.DataPoints))
		for i, dp := range s.DataPoints {
			out.DataPoints[i] = dp.clone()
		}
	}
	return out
}

func (d DataPoint) clone() DataPoint {
	out := d
	out.Value = cloneValue(d.Value)
	if d.Extra != nil {
		out.Extra = make(map[string]interface{}, len(d.Extra))
		for k, v := range d.Extra {
			out.Extra[k] = cloneValue(v)
		}
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, inner := range t {
			m[k] = cloneValue(inner)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, inner := range t {
			s[i] = cloneValue(inner)
		}
		return s
	default:
		return v
	}
}

// Outline is the editable document produced by outline generation
type Outline struct {
	Title  string  `json:"title" yaml:"title"`
	Slides []Slide `json:"slides" yaml:"slides"`
}

// Clone returns a deep copy so the caller can hand the outline to another
// owner without sharing slices
func (o Outline) Clone() Outline {
	out := Outline{Title: o.Title}
	if o.Slides != nil {
		out.Slides = make([]Slide, len(o.Slides))
		for i, s := range o.Slides {
			out.Slides[i] = s.Clone()
		}
	}
	return out
}

// Normalize fills in the backend defaults for fields that were absent on
// decode. Missing layouts become LayoutBullets and missing bullet lists
// become empty lists; the backend rejects a null list.
func (o *Outline) Normalize() {
	for i := range o.Slides {
		if o.Slides[i].Layout == "" {
			o.Slides[i].Layout = LayoutBullets
		}
		if o.Slides[i].BulletPoints == nil {
			o.Slides[i].BulletPoints = []string{}
		}
	}
}

// Validate checks the structural invariants the rest of the code relies on
func (o Outline) Validate() error {
	for i, s := range o.Slides {
		if !s.Layout.Valid() {
			return fmt.Errorf("slide %d: unknown layout %q", i, s.Layout)
		}
	}
	return nil
}

// TemplateRef identifies a custom .pptx template uploaded to the backend
type TemplateRef struct {
	ID       string `json:"template_id"`
	Filename string `json:"filename"`
}
