package ml

import (
	"fmt"
	"sort"
)

const (
	FieldAge        = "edad"
	FieldFemale     = "mujer"
	FieldSchooling  = "escoacum"
	FieldAfro       = "afrodes_new"
	FieldIndigenous = "hlengua_new"

	FieldNorthwest = "noroeste"
	FieldNortheast = "noreste"
	FieldWestBajio = "occidente_bajio"
	FieldSouth     = "sur"

	FieldPrimary   = "act_prim"
	FieldSecondary = "act_sec"

	FieldRural     = "loc_rural"
	FieldSemiRural = "loc_semirural"
	FieldSemiUrban = "loc_semiurbano"
	FieldUrban     = "loc_urbano"

	FieldAnyDisability = "cualquier_discapacidad"
	FieldVisual        = "discapacidad_ver"
	FieldHearing       = "discapacidad_oir"
	FieldWalking       = "discapacidad_caminar"
	FieldSelfCare      = "discapacidad_banarse"
	FieldSpeech        = "discapacidad_hablar"
	FieldMemory        = "discapacidad_recordar"
)

// Schema is the ordered list of fields a model consumes.
type Schema []string

// Vector maps field names to values. Field order comes from a Schema.
type Vector map[string]float64

// Row lays the vector out in schema order. Every schema field must be present.
func (s Schema) Row(v Vector) ([]float64, error) {
	row := make([]float64, len(s))
	for i, name := range s {
		value, ok := v[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingFeature, name)
		}
		row[i] = value
	}
	return row, nil
}

// Index returns the position of name in the schema, or -1.
func (s Schema) Index(name string) int {
	for i, field := range s {
		if field == name {
			return i
		}
	}
	return -1
}

// Contains reports whether name is a schema field.
func (s Schema) Contains(name string) bool {
	return s.Index(name) >= 0
}

// Clone returns an independent copy.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	for k, value := range v {
		out[k] = value
	}
	return out
}

// Fields returns the field names in lexical order.
func (v Vector) Fields() []string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func baseFields() []string {
	return []string{
		FieldAge,
		FieldFemale,
		FieldSchooling,
		FieldAfro,
		FieldIndigenous,
	}
}

func locationFields() []string {
	return []string{
		FieldNorthwest,
		FieldNortheast,
		FieldWestBajio,
		FieldSouth,
		FieldPrimary,
		FieldSecondary,
		FieldRural,
		FieldSemiRural,
		FieldSemiUrban,
		FieldUrban,
	}
}

// DisabilityFields lists the seven disability indicators of the wage schema.
func DisabilityFields() []string {
	return []string{
		FieldAnyDisability,
		FieldVisual,
		FieldHearing,
		FieldWalking,
		FieldSelfCare,
		FieldSpeech,
		FieldMemory,
	}
}

// ClassifierSchema is the input layout of the benefit classifiers.
func ClassifierSchema() Schema {
	fields := baseFields()
	fields = append(fields, FieldAnyDisability)
	fields = append(fields, locationFields()...)
	return Schema(fields)
}

// WageSchema is the input layout of the wage regressors.
func WageSchema() Schema {
	fields := baseFields()
	fields = append(fields, locationFields()...)
	fields = append(fields, DisabilityFields()...)
	return Schema(fields)
}

// IsDisabilityField reports whether name is one of the disability flags.
func IsDisabilityField(name string) bool {
	for _, field := range DisabilityFields() {
		if field == name {
			return true
		}
	}
	return false
}

// Profile holds the raw form selections. Categorical fields carry the
// user-facing labels of their Category.
type Profile struct {
	Age                int
	Schooling          int
	Gender             string
	Afrodescendant     string
	IndigenousLanguage string
	AnyDisability      string
	Region             string
	Sector             string
	Locality           string
}

// ClassifierVector assembles the benefit classifier input, including the
// generic disability flag.
func ClassifierVector(p Profile) (Vector, error) {
	v, err := commonVector(p)
	if err != nil {
		return nil, err
	}
	if err := mergeChoice(v, AnyDisability, p.AnyDisability); err != nil {
		return nil, err
	}
	return v, nil
}

// WageBaseline assembles the wage regressor input without any disability
// flag; WageVector completes it.
func WageBaseline(p Profile) (Vector, error) {
	return commonVector(p)
}

// WageVector clears the seven disability flags on a copy of baseline and,
// when disability is not empty, sets that one flag.
func WageVector(baseline Vector, disability string) (Vector, error) {
	if disability != "" && !IsDisabilityField(disability) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDisability, disability)
	}
	v := baseline.Clone()
	for _, field := range DisabilityFields() {
		v[field] = 0
	}
	if disability != "" {
		v[disability] = 1
	}
	return v, nil
}

func commonVector(p Profile) (Vector, error) {
	v := Vector{
		FieldAge:       float64(p.Age),
		FieldSchooling: float64(p.Schooling),
	}
	choices := []struct {
		category *Category
		label    string
	}{
		{Gender, p.Gender},
		{Afrodescendant, p.Afrodescendant},
		{IndigenousLanguage, p.IndigenousLanguage},
		{Region, p.Region},
		{Sector, p.Sector},
		{Locality, p.Locality},
	}
	for _, c := range choices {
		if err := mergeChoice(v, c.category, c.label); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func mergeChoice(v Vector, c *Category, label string) error {
	flags, err := c.Encode(label)
	if err != nil {
		return err
	}
	for field, value := range flags {
		v[field] = value
	}
	return nil
}
