package guidance

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/recycleright-backend/internal/taxonomy"
)

// ErrUnknownCategory means the caller passed a category outside the taxonomy.
// Classification always normalizes first, so this signals a programming error.
var ErrUnknownCategory = errors.New("unknown category")

type Guidance struct {
	Category        string   `json:"category"`
	Region          string   `json:"region"`
	Recyclable      bool     `json:"recyclable"`
	DisposalMethod  string   `json:"disposal_method"`
	Instructions    []string `json:"instructions"`
	SpecialHandling []string `json:"special_handling,omitempty"`
}

type Resolver struct {
	tax           *taxonomy.Taxonomy
	defaultRegion string
}

func NewResolver(tax *taxonomy.Taxonomy, defaultRegion string) *Resolver {
	defaultRegion = strings.ToLower(strings.TrimSpace(defaultRegion))
	if defaultRegion == "" {
		defaultRegion = taxonomy.DefaultRegion
	}
	return &Resolver{tax: tax, defaultRegion: defaultRegion}
}

// Resolve returns the ordered instructions for category in the default region.
func (r *Resolver) Resolve(category string) ([]string, error) {
	g, err := r.ResolveRegion(category, "")
	if err != nil {
		return nil, err
	}
	return g.Instructions, nil
}

// ResolveRegion looks up instructions for region, falling back to the resolver's
// default region and then the taxonomy-wide default. Returned slices are copies.
func (r *Resolver) ResolveRegion(category, region string) (Guidance, error) {
	c, ok := r.tax.Lookup(category)
	if !ok {
		return Guidance{}, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	region = strings.ToLower(strings.TrimSpace(region))
	if region == "" {
		region = r.defaultRegion
	}
	resolved := region
	steps, ok := c.Guidance[region]
	if !ok || len(steps) == 0 {
		resolved = r.defaultRegion
		steps, ok = c.Guidance[resolved]
	}
	if !ok || len(steps) == 0 {
		resolved = taxonomy.DefaultRegion
		steps = c.Guidance[resolved]
	}
	return Guidance{
		Category:        c.ID,
		Region:          resolved,
		Recyclable:      c.Recyclable,
		DisposalMethod:  c.DisposalMethod,
		Instructions:    append([]string(nil), steps...),
		SpecialHandling: append([]string(nil), c.SpecialHandling...),
	}, nil
}
