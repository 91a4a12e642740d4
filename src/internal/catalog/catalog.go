package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed data/meals.json
var builtinMeals []byte

// Meal is one catalog record. Its textual fields never change after load.
type Meal struct {
	ID            string `json:"id" yaml:"id"`
	Name          string `json:"meal_name" yaml:"meal_name"`
	PrimaryMood   string `json:"mood_1" yaml:"mood_1"`
	SecondaryMood string `json:"mood_2" yaml:"mood_2"`
	Reason        string `json:"reason" yaml:"reason"`
	Benefit       string `json:"benefit" yaml:"benefit"`
	Calories      int    `json:"calories" yaml:"calories"`
	CulturalTheme string `json:"cultural_theme" yaml:"cultural_theme"`
	DietaryTheme  string `json:"dietary_theme" yaml:"dietary_theme"`
}

// Text is the string a meal is embedded from.
func (m Meal) Text() string {
	return fmt.Sprintf("%s %s %s %s %s mood %s %s",
		m.Name, m.Reason, m.Benefit, m.CulturalTheme, m.DietaryTheme, m.PrimaryMood, m.SecondaryMood)
}

// Catalog is an ordered, immutable list of meals. Position in the catalog
// is the meal's row in the vector index.
type Catalog struct {
	meals  []Meal
	byID   map[string]int
	byName map[string]int
}

// New validates meals, fills in missing IDs and indexes them.
func New(meals []Meal) (*Catalog, error) {
	c := &Catalog{
		meals:  make([]Meal, len(meals)),
		byID:   make(map[string]int, len(meals)),
		byName: make(map[string]int, len(meals)),
	}
	for i, m := range meals {
		m.Name = strings.TrimSpace(m.Name)
		if m.Name == "" {
			return nil, fmt.Errorf("meal %d has no name", i)
		}
		m.ID = strings.TrimSpace(m.ID)
		if m.ID == "" {
			m.ID = Slug(m.Name)
		}
		if prev, ok := c.byID[m.ID]; ok {
			return nil, fmt.Errorf("duplicate meal id %q (meals %d and %d)", m.ID, prev, i)
		}
		c.meals[i] = m
		c.byID[m.ID] = i
		if _, ok := c.byName[strings.ToLower(m.Name)]; !ok {
			c.byName[strings.ToLower(m.Name)] = i
		}
	}
	return c, nil
}

func (c *Catalog) Len() int { return len(c.meals) }

// At returns the meal at position i. It panics if i is out of range.
func (c *Catalog) At(i int) Meal { return c.meals[i] }

// All returns a copy of the meals in catalog order.
func (c *Catalog) All() []Meal {
	out := make([]Meal, len(c.meals))
	copy(out, c.meals)
	return out
}

// Lookup finds a meal position by ID, falling back to a case-insensitive
// name match.
func (c *Catalog) Lookup(key string) (int, bool) {
	if i, ok := c.byID[key]; ok {
		return i, true
	}
	i, ok := c.byName[strings.ToLower(strings.TrimSpace(key))]
	return i, ok
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Parse(builtinMeals, "json")
}

// Load reads a catalog from a .json, .yaml or .yml file. An empty path
// loads the built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	c, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes meals in the given format ("json", "yaml" or "yml").
func Parse(data []byte, format string) (*Catalog, error) {
	var meals []Meal
	switch format {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&meals); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &meals); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}
	return New(meals)
}

// Slug derives a stable ID from a meal name: lower-case words joined by '-'.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}
