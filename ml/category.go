package ml

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Level is one selectable option of a Category. The baseline level has no Field.
type Level struct {
	Label string
	Field string
}

// Category one-hot encodes a categorical choice against its baseline level.
type Category struct {
	Name   string
	Levels []Level
}

var (
	Gender = &Category{Name: "gender", Levels: []Level{
		{Label: "Hombre"},
		{Label: "Mujer", Field: FieldFemale},
	}}
	Afrodescendant     = yesNo("afrodescendant", FieldAfro)
	IndigenousLanguage = yesNo("indigenous_language", FieldIndigenous)
	AnyDisability      = yesNo("any_disability", FieldAnyDisability)
	Region             = &Category{Name: "region", Levels: []Level{
		{Label: "Centro"},
		{Label: "Noroeste", Field: FieldNorthwest},
		{Label: "Noreste", Field: FieldNortheast},
		{Label: "Occidente/Bajío", Field: FieldWestBajio},
		{Label: "Sur", Field: FieldSouth},
	}}
	Sector = &Category{Name: "sector", Levels: []Level{
		{Label: "Terciario"},
		{Label: "Primario", Field: FieldPrimary},
		{Label: "Secundario", Field: FieldSecondary},
	}}
	Locality = &Category{Name: "locality", Levels: []Level{
		{Label: "Menor de 2,500 habitantes", Field: FieldRural},
		{Label: "2,500 a 14,999 habitantes", Field: FieldSemiRural},
		{Label: "15,000 a 49,999 habitantes", Field: FieldSemiUrban},
		{Label: "50,000 a 99,999 habitantes", Field: FieldUrban},
		{Label: "100,000 o más habitantes"},
	}}
)

func yesNo(name, field string) *Category {
	return &Category{Name: name, Levels: []Level{
		{Label: "No"},
		{Label: "Sí", Field: field},
	}}
}

// Categories returns every categorical input in form order.
func Categories() []*Category {
	return []*Category{Gender, Afrodescendant, IndigenousLanguage, AnyDisability, Region, Sector, Locality}
}

// CategoryByName looks up a categorical field by its name.
func CategoryByName(name string) (*Category, bool) {
	for _, c := range Categories() {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Labels lists the options in selector order.
func (c *Category) Labels() []string {
	labels := make([]string, len(c.Levels))
	for i, level := range c.Levels {
		labels[i] = level.Label
	}
	return labels
}

// Fields lists the indicator fields, baseline excluded.
func (c *Category) Fields() []string {
	fields := make([]string, 0, len(c.Levels))
	for _, level := range c.Levels {
		if level.Field != "" {
			fields = append(fields, level.Field)
		}
	}
	return fields
}

func (c *Category) Baseline() string {
	for _, level := range c.Levels {
		if level.Field == "" {
			return level.Label
		}
	}
	return ""
}

// Encode returns every indicator of the category, with only the selected one set.
func (c *Category) Encode(label string) (Vector, error) {
	level, err := c.level(label)
	if err != nil {
		return nil, err
	}
	flags := make(Vector, len(c.Levels))
	for _, field := range c.Fields() {
		flags[field] = 0
	}
	if level.Field != "" {
		flags[level.Field] = 1
	}
	return flags, nil
}

// Decode recovers the selected label from the category's flags in v.
func (c *Category) Decode(v Vector) (string, error) {
	selected := ""
	for _, level := range c.Levels {
		if level.Field == "" || v[level.Field] == 0 {
			continue
		}
		if selected != "" {
			return "", fmt.Errorf("%w: %s", ErrAmbiguousEncoding, c.Name)
		}
		selected = level.Label
	}
	if selected == "" {
		return c.Baseline(), nil
	}
	return selected, nil
}

// Parse matches free-form input against the labels ignoring case, accents
// and repeated whitespace, and returns the canonical label.
func (c *Category) Parse(input string) (string, error) {
	level, err := c.level(input)
	if err != nil {
		return "", err
	}
	return level.Label, nil
}

func (c *Category) level(label string) (Level, error) {
	for _, level := range c.Levels {
		if level.Label == label {
			return level, nil
		}
	}
	key := foldLabel(label)
	for _, level := range c.Levels {
		if foldLabel(level.Label) == key {
			return level, nil
		}
	}
	return Level{}, fmt.Errorf("%w: %s %q", ErrUnknownChoice, c.Name, label)
}

func foldLabel(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC, cases.Fold())
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = strings.ToLower(s)
	}
	return strings.Join(strings.Fields(folded), " ")
}
