package taxonomy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Unclassified is the sentinel category for labels the taxonomy does not know.
const Unclassified = "unclassified"

// DefaultRegion is the guidance region every category must define.
const DefaultRegion = "default"

//go:embed taxonomy.yaml
var embeddedTaxonomy []byte

var (
	ErrInvalidTaxonomy = errors.New("invalid taxonomy")
)

var validMaterials = map[string]bool{
	"plastic": true, "paper": true, "glass": true, "metal": true, "organic": true,
	"electronic": true, "hazardous": true, "textile": true, "other": true,
}

var validDisposal = map[string]bool{
	"recycle": true, "compost": true, "special_collection": true, "trash": true,
}

type Category struct {
	ID              string              `yaml:"id" json:"id"`
	Name            string              `yaml:"name" json:"name"`
	Material        string              `yaml:"material" json:"material"`
	Recyclable      bool                `yaml:"recyclable" json:"recyclable"`
	DisposalMethod  string              `yaml:"disposal_method" json:"disposal_method"`
	Aliases         []string            `yaml:"aliases" json:"aliases,omitempty"`
	Guidance        map[string][]string `yaml:"guidance" json:"guidance"`
	SpecialHandling []string            `yaml:"special_handling" json:"special_handling,omitempty"`
}

type document struct {
	Categories []Category `yaml:"categories"`
}

// Taxonomy is immutable after construction and safe for concurrent use.
type Taxonomy struct {
	byID    map[string]Category
	byAlias map[string]string
	ids     []string
}

// Default parses the embedded taxonomy.
func Default() (*Taxonomy, error) {
	return Parse(embeddedTaxonomy)
}

// Load reads a taxonomy from path, or the embedded one when path is empty.
func Load(path string) (*Taxonomy, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy %s: %w", path, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Taxonomy, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTaxonomy, err)
	}
	return New(doc.Categories)
}

func New(categories []Category) (*Taxonomy, error) {
	t := &Taxonomy{
		byID:    make(map[string]Category, len(categories)),
		byAlias: map[string]string{},
	}
	for _, c := range categories {
		c.ID = Key(c.ID)
		if c.ID == "" {
			return nil, fmt.Errorf("%w: category without id", ErrInvalidTaxonomy)
		}
		if _, dup := t.byID[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate category %q", ErrInvalidTaxonomy, c.ID)
		}
		if !validMaterials[c.Material] {
			return nil, fmt.Errorf("%w: category %q has unknown material %q", ErrInvalidTaxonomy, c.ID, c.Material)
		}
		if !validDisposal[c.DisposalMethod] {
			return nil, fmt.Errorf("%w: category %q has unknown disposal method %q", ErrInvalidTaxonomy, c.ID, c.DisposalMethod)
		}
		if len(c.Guidance[DefaultRegion]) == 0 {
			return nil, fmt.Errorf("%w: category %q has no default guidance", ErrInvalidTaxonomy, c.ID)
		}
		t.byID[c.ID] = c
		t.ids = append(t.ids, c.ID)
	}
	if _, ok := t.byID[Unclassified]; !ok {
		return nil, fmt.Errorf("%w: missing %q category", ErrInvalidTaxonomy, Unclassified)
	}
	if t.byID[Unclassified].Recyclable {
		return nil, fmt.Errorf("%w: %q must not be recyclable", ErrInvalidTaxonomy, Unclassified)
	}
	for _, id := range t.ids {
		for _, alias := range t.byID[id].Aliases {
			k := Key(alias)
			if k == "" || k == id {
				continue
			}
			if _, clash := t.byID[k]; clash {
				return nil, fmt.Errorf("%w: alias %q of %q shadows a category id", ErrInvalidTaxonomy, alias, id)
			}
			if owner, dup := t.byAlias[k]; dup && owner != id {
				return nil, fmt.Errorf("%w: alias %q claimed by %q and %q", ErrInvalidTaxonomy, alias, owner, id)
			}
			t.byAlias[k] = id
		}
	}
	sort.Strings(t.ids)
	return t, nil
}

// Key folds a raw label into lookup form: lowercase, spaces and dashes as underscores.
func Key(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '/', '.':
			return '_'
		}
		return r
	}, s)
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return strings.Trim(s, "_")
}

// Normalize maps a raw model label onto a category. Unknown labels yield Unclassified.
func (t *Taxonomy) Normalize(raw string) Category {
	k := Key(raw)
	if c, ok := t.byID[k]; ok {
		return c
	}
	if id, ok := t.byAlias[k]; ok {
		return t.byID[id]
	}
	return t.byID[Unclassified]
}

// Known reports whether raw resolves to a category other than Unclassified.
func (t *Taxonomy) Known(raw string) bool {
	return t.Normalize(raw).ID != Unclassified
}

func (t *Taxonomy) Lookup(id string) (Category, bool) {
	c, ok := t.byID[Key(id)]
	return c, ok
}

func (t *Taxonomy) Recyclable(id string) bool {
	c, ok := t.Lookup(id)
	return ok && c.Recyclable
}

// IDs lists category ids in ascending order.
func (t *Taxonomy) IDs() []string {
	return append([]string(nil), t.ids...)
}

func (t *Taxonomy) Categories() []Category {
	out := make([]Category, 0, len(t.ids))
	for _, id := range t.ids {
		out = append(out, t.byID[id])
	}
	return out
}
