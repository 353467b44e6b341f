package audit

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"github.com/roach88/rdfstamp/internal/rdf"
)

//go:embed templates/*.ru
var templateFS embed.FS

// Placeholders substituted into templates, in order: context, subject,
// predicate, object.
const (
	PlaceholderContext   = "{0}"
	PlaceholderSubject   = "{1}"
	PlaceholderPredicate = "{2}"
	PlaceholderObject    = "{3}"
)

// TemplatePaths names optional template override files. Empty fields keep
// the embedded default.
type TemplatePaths struct {
	InsertGraph   string
	InsertDefault string
	DeleteGraph   string
	DeleteDefault string
}

// Templates holds the audit-update templates.
type Templates struct {
	InsertGraph   string
	InsertDefault string
	DeleteGraph   string
	DeleteDefault string
}

// DefaultTemplates returns the embedded templates.
func DefaultTemplates() *Templates {
	return &Templates{
		InsertGraph:   mustReadEmbedded("insert_graph.ru"),
		InsertDefault: mustReadEmbedded("insert_default.ru"),
		DeleteGraph:   mustReadEmbedded("delete_graph.ru"),
		DeleteDefault: mustReadEmbedded("delete_default.ru"),
	}
}

func mustReadEmbedded(name string) string {
	b, err := templateFS.ReadFile("templates/" + name)
	if err != nil {
		panic(fmt.Sprintf("embedded template %s: %v", name, err))
	}
	return strings.TrimSpace(string(b))
}

// LoadTemplates starts from the embedded defaults and replaces every template
// whose path is set. The result is validated before it is returned.
func LoadTemplates(paths TemplatePaths) (*Templates, error) {
	t := DefaultTemplates()

	overrides := []struct {
		path string
		dst  *string
	}{
		{paths.InsertGraph, &t.InsertGraph},
		{paths.InsertDefault, &t.InsertDefault},
		{paths.DeleteGraph, &t.DeleteGraph},
		{paths.DeleteDefault, &t.DeleteDefault},
	}
	for _, o := range overrides {
		if o.path == "" {
			continue
		}
		b, err := os.ReadFile(o.path)
		if err != nil {
			return nil, fmt.Errorf("load template: %w", err)
		}
		*o.dst = strings.TrimSpace(string(b))
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks that every template references the placeholders it needs.
// Graph templates need all four; default-graph templates need subject,
// predicate and object.
func (t *Templates) Validate() error {
	triple := []string{PlaceholderSubject, PlaceholderPredicate, PlaceholderObject}
	graph := append([]string{PlaceholderContext}, triple...)

	checks := []struct {
		name     string
		text     string
		required []string
	}{
		{"insert_graph", t.InsertGraph, graph},
		{"insert_default", t.InsertDefault, triple},
		{"delete_graph", t.DeleteGraph, graph},
		{"delete_default", t.DeleteDefault, triple},
	}
	for _, c := range checks {
		if strings.TrimSpace(c.text) == "" {
			return fmt.Errorf("template %s is empty", c.name)
		}
		for _, ph := range c.required {
			if !strings.Contains(c.text, ph) {
				return fmt.Errorf("template %s is missing placeholder %s", c.name, ph)
			}
		}
	}
	return nil
}

// Insert fills the insert template matching the key's context.
func (t *Templates) Insert(k rdf.StatementKey) string {
	if k.HasContext() {
		return fill(t.InsertGraph, k)
	}
	return fill(t.InsertDefault, k)
}

// Delete fills the delete template matching the key's context.
func (t *Templates) Delete(k rdf.StatementKey) string {
	if k.HasContext() {
		return fill(t.DeleteGraph, k)
	}
	return fill(t.DeleteDefault, k)
}

// fill substitutes in a single pass, so placeholder-looking text inside a
// rendered value is never substituted again.
func fill(tpl string, k rdf.StatementKey) string {
	r := strings.NewReplacer(
		PlaceholderContext, k.ContextText(),
		PlaceholderSubject, k.Subject,
		PlaceholderPredicate, k.Predicate,
		PlaceholderObject, k.Object,
	)
	return r.Replace(tpl)
}
