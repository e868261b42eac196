package writer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lamim/deckforge/internal/outline"
	"github.com/lamim/deckforge/pkg/models"
)

func realisticOutline() models.Outline {
	return models.Outline{
		Title: "2025 年度总结",
		Slides: []models.Slide{
			{Title: "Welcome", BulletPoints: []string{}, Layout: models.LayoutTitle, Notes: "Introduce the team"},
			{Title: "Agenda", BulletPoints: []string{"Results", "Risks", "Plans"}, Layout: models.LayoutBullets, Icon: "list"},
			{
				Title:        "Revenue by quarter",
				BulletPoints: []string{"Growth accelerated in H2"},
				Layout:       models.LayoutColumnChart,
				DataPoints: []models.DataPoint{
					{Label: "Q1", Value: 10.5},
					{Label: "Q2", Value: 12.25, Extra: map[string]interface{}{"series": "EU"}},
				},
			},
			{Title: "Roadmap", BulletPoints: []string{"Launch: mobile app", "Hire #2"}, Layout: models.LayoutTimeline},
			{Title: "Thanks", BulletPoints: []string{}, Layout: models.LayoutThanks},
		},
	}
}

func TestOutlineRoundTrip(t *testing.T) {
	for _, name := range []string{"outline.yaml", "outline.yml", "outline.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			want := realisticOutline()

			if err := SaveOutline(path, want); err != nil {
				t.Fatalf("SaveOutline() error = %v", err)
			}
			if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
				t.Error("temp file left behind")
			}

			got, err := LoadOutline(path)
			if err != nil {
				t.Fatalf("LoadOutline() error = %v", err)
			}
			if changes := outline.Diff(want, got); len(changes) != 0 {
				t.Errorf("round trip changed the outline: %v", changes)
			}
		})
	}
}

func TestMarshalOutline_Format(t *testing.T) {
	doc := realisticOutline()

	yamlData, err := MarshalOutline("x.YAML", doc)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(yamlData), "bullet_points:") || strings.HasPrefix(string(yamlData), "{") {
		t.Errorf("expected YAML output, got %q", yamlData)
	}

	jsonData, err := MarshalOutline("x.json", doc)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(jsonData), "{") || !strings.Contains(string(jsonData), `"series": "EU"`) {
		t.Errorf("expected JSON output with flattened extra, got %q", jsonData)
	}
}

func TestLoadOutline_DefaultsAndErrors(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "min.json")
	if err := os.WriteFile(path, []byte(`{"title":"T","slides":[{"title":"A","bullet_points":["x"]}]}`), 0644); err != nil {
		t.Fatal(err)
	}
	doc, err := LoadOutline(path)
	if err != nil {
		t.Fatalf("LoadOutline() error = %v", err)
	}
	if doc.Slides[0].Layout != models.LayoutBullets {
		t.Errorf("missing layout should default to bullets, got %q", doc.Slides[0].Layout)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("title: T\nslides:\n  - title: A\n    layout: hologram\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOutline(bad); err == nil {
		t.Error("expected error for unknown layout")
	}

	garbled := filepath.Join(dir, "garbled.json")
	if err := os.WriteFile(garbled, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOutline(garbled); err == nil {
		t.Error("expected parse error")
	}

	if _, err := LoadOutline(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected read error")
	}
}

func TestLoadOutline_MissingBulletsBecomeEmptyList(t *testing.T) {
	dir := t.TempDir()

	for name, content := range map[string]string{
		"hand.yaml": "title: Deck\nslides:\n  - title: Thanks\n    layout: thanks\n",
		"hand.json": `{"title":"Deck","slides":[{"title":"Thanks","layout":"thanks"}]}`,
	} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		doc, err := LoadOutline(path)
		if err != nil {
			t.Fatalf("LoadOutline(%s) error = %v", name, err)
		}
		data, err := json.Marshal(doc)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), `"bullet_points":[]`) {
			t.Errorf("%s: expected empty bullet list, got %s", name, data)
		}
	}
}
