// Package catalog holds the static questionnaire and the size-based filter.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"

	"github.com/boddenberg/security-assessment-go/internal/domain"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is an immutable, ordered set of questions.
type Catalog struct {
	questions []domain.Question
	byID      map[string]int
}

// Category groups questions for navigation.
type Category struct {
	Name   string   `json:"name"`
	Groups []string `json:"groups"`
	Total  int      `json:"total"`
}

type catalogFile struct {
	Questions []domain.Question `yaml:"questions"`
}

// Default loads the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(f.Questions)
}

// New validates questions and builds a catalog sorted by Order. Ties keep
// their input order.
func New(questions []domain.Question) (*Catalog, error) {
	qs := make([]domain.Question, len(questions))
	copy(qs, questions)
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Order < qs[j].Order })

	byID := make(map[string]int, len(qs))
	for i, q := range qs {
		if q.ID == "" {
			return nil, &domain.ErrValidation{Field: "id", Message: fmt.Sprintf("question at position %d has no id", i)}
		}
		if _, dup := byID[q.ID]; dup {
			return nil, &domain.ErrValidation{Field: "id", Message: "duplicate question id " + q.ID}
		}
		if !q.Type.Valid() {
			return nil, &domain.ErrValidation{Field: "type", Message: fmt.Sprintf("question %s has unknown type %q", q.ID, q.Type)}
		}
		if (q.Type == domain.TypeSelect || q.Type == domain.TypeMultiSelect) && len(q.Options) == 0 {
			return nil, &domain.ErrValidation{Field: "options", Message: "select question " + q.ID + " has no options"}
		}
		if q.Text == "" || q.Category == "" {
			return nil, &domain.ErrValidation{Field: "text", Message: "question " + q.ID + " needs text and category"}
		}
		byID[q.ID] = i
	}

	return &Catalog{questions: qs, byID: byID}, nil
}

// Questions returns every question in catalog order.
func (c *Catalog) Questions() []domain.Question {
	out := make([]domain.Question, len(c.questions))
	copy(out, c.questions)
	return out
}

// Len returns the number of questions.
func (c *Catalog) Len() int { return len(c.questions) }

// Question looks up a question by id.
func (c *Catalog) Question(id string) (domain.Question, bool) {
	i, ok := c.byID[id]
	if !ok {
		return domain.Question{}, false
	}
	return c.questions[i], true
}

// ForSize returns the questions applicable to a company size.
func (c *Catalog) ForSize(size domain.CompanySize) []domain.Question {
	return Filter(c.questions, size)
}

// Categories lists categories in first-appearance order with their groups.
func (c *Catalog) Categories() []Category {
	var out []Category
	idx := make(map[string]int)
	seenGroup := make(map[string]bool)
	for _, q := range c.questions {
		i, ok := idx[q.Category]
		if !ok {
			i = len(out)
			idx[q.Category] = i
			out = append(out, Category{Name: q.Category, Groups: []string{}})
		}
		out[i].Total++
		key := q.Category + "\x00" + q.Group
		if q.Group != "" && !seenGroup[key] {
			seenGroup[key] = true
			out[i].Groups = append(out[i].Groups, q.Group)
		}
	}
	return out
}

// GroupsByCategory returns the groups of one category, nil if unknown.
func (c *Catalog) GroupsByCategory(category string) []string {
	for _, cat := range c.Categories() {
		if cat.Name == category {
			return cat.Groups
		}
	}
	return nil
}

// Filter keeps the questions that apply to size, preserving order. An empty
// or unknown size yields an empty result.
func Filter(questions []domain.Question, size domain.CompanySize) []domain.Question {
	out := make([]domain.Question, 0, len(questions))
	if !size.Valid() {
		return out
	}
	for _, q := range questions {
		if q.AppliesTo(size) {
			out = append(out, q)
		}
	}
	return out
}
