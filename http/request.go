package http

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"laborcond/ml"
)

// ProfileRequest is the shared part of both forms. Empty categorical
// fields fall back to the category baseline.
type ProfileRequest struct {
	Age                int    `json:"edad" mapstructure:"edad" validate:"min=18,max=99"`
	Schooling          int    `json:"escolaridad" mapstructure:"escolaridad" validate:"min=0,max=30"`
	Gender             string `json:"sexo" mapstructure:"sexo" validate:"omitempty,choice=gender"`
	Afrodescendant     string `json:"afrodescendiente" mapstructure:"afrodescendiente" validate:"omitempty,choice=afrodescendant"`
	IndigenousLanguage string `json:"lengua_indigena" mapstructure:"lengua_indigena" validate:"omitempty,choice=indigenous_language"`
	AnyDisability      string `json:"discapacidad" mapstructure:"discapacidad" validate:"omitempty,choice=any_disability"`
	Region             string `json:"region" mapstructure:"region" validate:"omitempty,choice=region"`
	Sector             string `json:"sector" mapstructure:"sector" validate:"omitempty,choice=sector"`
	Locality           string `json:"localidad" mapstructure:"localidad" validate:"omitempty,choice=locality"`
}

type BenefitRequest struct {
	ProfileRequest `mapstructure:",squash"`
	Benefit        string `json:"prestacion" mapstructure:"prestacion"`
}

type WageRequest struct {
	ProfileRequest `mapstructure:",squash"`
	Disability     string `json:"tipo_discapacidad" mapstructure:"tipo_discapacidad"`
}

// DefaultProfileRequest is what an untouched form shows.
func DefaultProfileRequest() ProfileRequest {
	return ProfileRequest{
		Age:                30,
		Schooling:          12,
		Gender:             ml.Gender.Labels()[0],
		Afrodescendant:     ml.Afrodescendant.Labels()[0],
		IndigenousLanguage: ml.IndigenousLanguage.Labels()[0],
		AnyDisability:      ml.AnyDisability.Labels()[0],
		Region:             ml.Region.Labels()[0],
		Sector:             ml.Sector.Labels()[0],
		Locality:           ml.Locality.Labels()[0],
	}
}

// Profile canonicalizes the labels and returns the assembler input.
func (p ProfileRequest) Profile() (ml.Profile, error) {
	profile := ml.Profile{Age: p.Age, Schooling: p.Schooling}
	choices := []struct {
		category *ml.Category
		input    string
		dst      *string
	}{
		{ml.Gender, p.Gender, &profile.Gender},
		{ml.Afrodescendant, p.Afrodescendant, &profile.Afrodescendant},
		{ml.IndigenousLanguage, p.IndigenousLanguage, &profile.IndigenousLanguage},
		{ml.AnyDisability, p.AnyDisability, &profile.AnyDisability},
		{ml.Region, p.Region, &profile.Region},
		{ml.Sector, p.Sector, &profile.Sector},
		{ml.Locality, p.Locality, &profile.Locality},
	}
	for _, c := range choices {
		if strings.TrimSpace(c.input) == "" {
			*c.dst = c.category.Baseline()
			continue
		}
		label, err := c.category.Parse(c.input)
		if err != nil {
			return ml.Profile{}, err
		}
		*c.dst = label
	}
	return profile, nil
}

// Validate checks the ranges and labels the forms enforce.
func (p ProfileRequest) Validate() error {
	return validateRequest(newValidator(), p)
}

// ValidationError carries one message per offending field.
type ValidationError struct {
	Fields map[string]string
}

// Error lists the fields in name order.
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, field := range slices.Sorted(maps.Keys(e.Fields)) {
		parts = append(parts, field+": "+e.Fields[field])
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("choice", func(fl validator.FieldLevel) bool {
		category, ok := ml.CategoryByName(fl.Param())
		if !ok {
			return false
		}
		_, err := category.Parse(fl.Field().String())
		return err == nil
	})
	return v
}

func validateRequest(v *validator.Validate, req any) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	fields := make(map[string]string, len(validationErrors))
	for _, fe := range validationErrors {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return &ValidationError{Fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("debe ser al menos %s", fe.Param())
	case "max":
		return fmt.Sprintf("debe ser como máximo %s", fe.Param())
	case "choice":
		category, ok := ml.CategoryByName(fe.Param())
		if !ok {
			return "opción no válida"
		}
		return "opción no válida; use una de: " + strings.Join(category.Labels(), ", ")
	case "required":
		return "es obligatorio"
	default:
		return "no es válido"
	}
}

// decodeForm maps submitted form values onto dst by their mapstructure tags.
func decodeForm(values url.Values, dst any) error {
	input := make(map[string]any, len(values))
	for key, vals := range values {
		if len(vals) > 0 {
			input[key] = strings.TrimSpace(vals[0])
		}
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           dst,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(input); err != nil {
		return &ValidationError{Fields: map[string]string{"form": err.Error()}}
	}
	return nil
}
