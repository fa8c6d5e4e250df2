// Package patterns holds the named, versioned extraction patterns shared by
// every tier. Patterns generalize over field shape (two-letter prefix plus
// digits, labelled invoice headers) instead of enumerating literal values,
// and a library only ever grows: a vendor adding a new code shape gets a new
// named pattern alongside the old one, never a replacement.
package patterns

import (
	"fmt"
	"regexp"
)

// Field is the semantic line-item field a pattern extracts.
type Field string

const (
	FieldProductCode   Field = "product_code"
	FieldInvoiceNumber Field = "invoice_number"
	FieldQuantity      Field = "quantity"
	FieldUnitPrice     Field = "unit_price"
	FieldUPC           Field = "upc"
)

// Pattern is one compiled, named extractor. Go's regexp is RE2-based, so
// matching is linear in input size and cannot backtrack catastrophically.
type Pattern struct {
	Name  string
	Field Field
	re    *regexp.Regexp
}

// Compile builds a Pattern. The expression should capture the value in
// group 1 when the surrounding context (labels, separators) is part of the
// match; with no groups the whole match is the value.
func Compile(name string, field Field, expr string) (Pattern, error) {
	if name == "" {
		return Pattern{}, fmt.Errorf("pattern name is required")
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("compile pattern %q: %w", name, err)
	}
	return Pattern{Name: name, Field: field, re: re}, nil
}

// MustCompile is Compile for the built-in set; panics on a bad expression.
func MustCompile(name string, field Field, expr string) Pattern {
	p, err := Compile(name, field, expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Find returns the first extracted value in s.
func (p Pattern) Find(s string) (string, bool) {
	m := p.re.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return submatchValue(m), true
}

// FindAll returns every extracted value in s, in document order.
func (p Pattern) FindAll(s string) []string {
	ms := p.re.FindAllStringSubmatch(s, -1)
	if ms == nil {
		return nil
	}
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, submatchValue(m))
	}
	return out
}

// Match reports whether the whole value matches the pattern anchored at
// both ends. Used to recognize already-isolated values (e.g. a table cell).
func (p Pattern) Match(s string) bool {
	loc := p.re.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

// Expr returns the source expression, for logging and profile dumps.
func (p Pattern) Expr() string { return p.re.String() }

func submatchValue(m []string) string {
	if len(m) > 1 && m[1] != "" {
		return m[1]
	}
	return m[0]
}

// Library maps pattern names to compiled patterns and keeps per-field
// ordered lists. Read-only once built; safe for concurrent use without
// locking.
type Library struct {
	byName  map[string]Pattern
	byField map[Field][]Pattern
}

func NewLibrary() *Library {
	return &Library{
		byName:  make(map[string]Pattern),
		byField: make(map[Field][]Pattern),
	}
}

// Add registers a pattern. Registration unions: a second pattern for the
// same field goes behind the existing ones, and re-registering an existing
// name is an error so a format revision cannot silently overwrite the
// pattern that still matches historical documents.
func (l *Library) Add(p Pattern) error {
	if _, exists := l.byName[p.Name]; exists {
		return fmt.Errorf("pattern %q already registered; add a new name instead of replacing", p.Name)
	}
	l.byName[p.Name] = p
	l.byField[p.Field] = append(l.byField[p.Field], p)
	return nil
}

// MustAdd panics on a name collision; used for the built-in set.
func (l *Library) MustAdd(p Pattern) {
	if err := l.Add(p); err != nil {
		panic(err)
	}
}

// Get looks a pattern up by name.
func (l *Library) Get(name string) (Pattern, bool) {
	p, ok := l.byName[name]
	return p, ok
}

// Field returns the ordered pattern list for a semantic field.
func (l *Library) Field(f Field) []Pattern {
	return l.byField[f]
}

// Resolve maps pattern names to their compiled patterns, preserving order.
func (l *Library) Resolve(names []string) ([]Pattern, error) {
	out := make([]Pattern, 0, len(names))
	for _, n := range names {
		p, ok := l.byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown pattern %q", n)
		}
		out = append(out, p)
	}
	return out, nil
}

// Len reports the number of registered patterns.
func (l *Library) Len() int { return len(l.byName) }
