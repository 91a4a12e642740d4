package mood

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// FallbackPrimary and FallbackSecondary are returned when a label cannot
	// be resolved with enough confidence.
	FallbackPrimary   = "Calm"
	FallbackSecondary = "Neutral"
)

//go:embed data/taxonomy.yaml
var builtinTaxonomy []byte

// Mood is one canonical taxonomy entry.
type Mood struct {
	Label       string   `yaml:"label" json:"label"`
	Description string   `yaml:"description" json:"description"`
	Synonyms    []string `yaml:"synonyms" json:"synonyms"`
}

// Terms returns the label followed by its synonyms.
func (m Mood) Terms() []string {
	out := make([]string, 0, len(m.Synonyms)+1)
	out = append(out, m.Label)
	return append(out, m.Synonyms...)
}

// Taxonomy is an ordered set of canonical moods. Order matters: it breaks
// ties and decides which entry wins when synonyms overlap.
type Taxonomy struct {
	moods   []Mood
	byLabel map[string]int
}

func NewTaxonomy(moods []Mood) (*Taxonomy, error) {
	t := &Taxonomy{
		moods:   make([]Mood, 0, len(moods)),
		byLabel: make(map[string]int, len(moods)),
	}
	for _, m := range moods {
		m.Label = strings.TrimSpace(m.Label)
		if m.Label == "" {
			return nil, fmt.Errorf("mood with empty label")
		}
		key := strings.ToLower(m.Label)
		if _, dup := t.byLabel[key]; dup {
			return nil, fmt.Errorf("duplicate mood label %q", m.Label)
		}
		t.byLabel[key] = len(t.moods)
		t.moods = append(t.moods, m)
	}
	for _, required := range []string{FallbackPrimary, FallbackSecondary} {
		if _, ok := t.byLabel[strings.ToLower(required)]; !ok {
			return nil, fmt.Errorf("taxonomy must contain %q", required)
		}
	}
	return t, nil
}

// DefaultTaxonomy returns the built-in taxonomy.
func DefaultTaxonomy() *Taxonomy {
	t, err := ParseTaxonomy(builtinTaxonomy)
	if err != nil {
		panic(fmt.Sprintf("built-in mood taxonomy is invalid: %v", err))
	}
	return t
}

// LoadTaxonomy reads a YAML taxonomy file. An empty path returns the
// built-in taxonomy.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	if path == "" {
		return DefaultTaxonomy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	return ParseTaxonomy(data)
}

func ParseTaxonomy(data []byte) (*Taxonomy, error) {
	var moods []Mood
	if err := yaml.Unmarshal(data, &moods); err != nil {
		return nil, fmt.Errorf("decode taxonomy: %w", err)
	}
	return NewTaxonomy(moods)
}

func (t *Taxonomy) Len() int { return len(t.moods) }

func (t *Taxonomy) Moods() []Mood {
	out := make([]Mood, len(t.moods))
	copy(out, t.moods)
	return out
}

func (t *Taxonomy) Labels() []string {
	out := make([]string, len(t.moods))
	for i, m := range t.moods {
		out[i] = m.Label
	}
	return out
}

// Get looks up a mood by label, case-insensitively.
func (t *Taxonomy) Get(label string) (Mood, bool) {
	i, ok := t.byLabel[strings.ToLower(strings.TrimSpace(label))]
	if !ok {
		return Mood{}, false
	}
	return t.moods[i], true
}

// Match returns the first mood, in taxonomy order, that has term as its
// label or one of its synonyms.
func (t *Taxonomy) Match(term string) (Mood, bool) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return Mood{}, false
	}
	for _, m := range t.moods {
		for _, s := range m.Terms() {
			if strings.ToLower(s) == term {
				return m, true
			}
		}
	}
	return Mood{}, false
}
