// Package registry maps the categories offered to users onto model artifacts.
package registry

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"laborcond/ml"
)

var (
	ErrUnknownBenefit    = errors.New("unknown benefit")
	ErrUnknownDisability = errors.New("unknown disability")
	ErrInvalidManifest   = errors.New("invalid model manifest")
)

// Benefit is one labor benefit with its eligibility classifier.
type Benefit struct {
	Name     string `yaml:"name" json:"name"`
	Artifact string `yaml:"artifact" json:"artifact"`
}

// Disability is one disability category: the wage-schema flag it sets, the
// label shown to users and its wage regressor.
type Disability struct {
	Key      string `yaml:"key" json:"key"`
	Label    string `yaml:"label" json:"label"`
	Artifact string `yaml:"artifact" json:"artifact"`
}

// Manifest is the on-disk form of a registry. List order is selector order.
type Manifest struct {
	Benefits     []Benefit    `yaml:"benefits"`
	Disabilities []Disability `yaml:"disabilities"`
}

// Registry is immutable once built; accessors hand out copies.
type Registry struct {
	benefits     []Benefit
	disabilities []Disability
	byBenefit    map[string]int
	byKey        map[string]int
	byLabel      map[string]int
}

func DefaultManifest() Manifest {
	return Manifest{
		Benefits: []Benefit{
			{Name: "Aguinaldo", Artifact: "modelo_aguinaldo.json"},
			{Name: "Vacaciones con sueldo", Artifact: "modelo_vacaciones.json"},
			{Name: "Servicio Médico", Artifact: "modelo_servicio_medico.json"},
			{Name: "Utilidades", Artifact: "modelo_utilidades.json"},
			{Name: "Incapacidad con sueldo", Artifact: "modelo_incap_sueldo.json"},
			{Name: "AFORE", Artifact: "modelo_afore.json"},
			{Name: "Crédito para vivienda", Artifact: "modelo_credito_vivienda.json"},
		},
		Disabilities: []Disability{
			{Key: ml.FieldAnyDisability, Label: "Cualquier Discapacidad", Artifact: "modelo_salario_cualquier_discapacidad.json"},
			{Key: ml.FieldVisual, Label: "Discapacidad Visual", Artifact: "modelo_salario_discapacidad_ver.json"},
			{Key: ml.FieldHearing, Label: "Discapacidad Auditiva", Artifact: "modelo_salario_discapacidad_oir.json"},
			{Key: ml.FieldWalking, Label: "Discapacidad Motriz", Artifact: "modelo_salario_discapacidad_caminar.json"},
			{Key: ml.FieldSelfCare, Label: "Discapacidad para Cuidarse", Artifact: "modelo_salario_discapacidad_banarse.json"},
			{Key: ml.FieldSpeech, Label: "Discapacidad del Habla", Artifact: "modelo_salario_discapacidad_hablar.json"},
			{Key: ml.FieldMemory, Label: "Discapacidad Cognitiva", Artifact: "modelo_salario_discapacidad_recordar.json"},
		},
	}
}

// Default returns the registry of the published models.
func Default() *Registry {
	r, err := New(DefaultManifest())
	if err != nil {
		panic(err)
	}
	return r
}

// Load reads a YAML manifest.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.UnmarshalStrict(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return New(m)
}

// New validates m and indexes its benefits and disabilities.
func New(m Manifest) (*Registry, error) {
	if len(m.Benefits) == 0 {
		return nil, fmt.Errorf("%w: no benefits", ErrInvalidManifest)
	}
	if len(m.Disabilities) == 0 {
		return nil, fmt.Errorf("%w: no disabilities", ErrInvalidManifest)
	}

	r := &Registry{
		benefits:     append([]Benefit(nil), m.Benefits...),
		disabilities: append([]Disability(nil), m.Disabilities...),
		byBenefit:    make(map[string]int, len(m.Benefits)),
		byKey:        make(map[string]int, len(m.Disabilities)),
		byLabel:      make(map[string]int, len(m.Disabilities)),
	}
	for i, b := range r.benefits {
		if b.Name == "" || b.Artifact == "" {
			return nil, fmt.Errorf("%w: benefit %d needs name and artifact", ErrInvalidManifest, i)
		}
		if _, dup := r.byBenefit[b.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate benefit %q", ErrInvalidManifest, b.Name)
		}
		r.byBenefit[b.Name] = i
	}
	for i, d := range r.disabilities {
		if d.Key == "" || d.Label == "" || d.Artifact == "" {
			return nil, fmt.Errorf("%w: disability %d needs key, label and artifact", ErrInvalidManifest, i)
		}
		if !ml.IsDisabilityField(d.Key) {
			return nil, fmt.Errorf("%w: %q is not a disability field", ErrInvalidManifest, d.Key)
		}
		if _, dup := r.byKey[d.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate disability key %q", ErrInvalidManifest, d.Key)
		}
		if _, dup := r.byLabel[d.Label]; dup {
			return nil, fmt.Errorf("%w: duplicate disability label %q", ErrInvalidManifest, d.Label)
		}
		r.byKey[d.Key] = i
		r.byLabel[d.Label] = i
	}
	return r, nil
}

func (r *Registry) Benefits() []Benefit {
	return append([]Benefit(nil), r.benefits...)
}

// BenefitNames is the benefit selector, in manifest order.
func (r *Registry) BenefitNames() []string {
	names := make([]string, len(r.benefits))
	for i, b := range r.benefits {
		names[i] = b.Name
	}
	return names
}

// Benefit returns the entry named exactly name.
func (r *Registry) Benefit(name string) (Benefit, error) {
	i, ok := r.byBenefit[name]
	if !ok {
		return Benefit{}, fmt.Errorf("%w: %q", ErrUnknownBenefit, name)
	}
	return r.benefits[i], nil
}

func (r *Registry) Disabilities() []Disability {
	return append([]Disability(nil), r.disabilities...)
}

// DisabilityLabels is the disability selector, in manifest order.
func (r *Registry) DisabilityLabels() []string {
	labels := make([]string, len(r.disabilities))
	for i, d := range r.disabilities {
		labels[i] = d.Label
	}
	return labels
}

func (r *Registry) DisabilityByKey(key string) (Disability, error) {
	i, ok := r.byKey[key]
	if !ok {
		return Disability{}, fmt.Errorf("%w: %q", ErrUnknownDisability, key)
	}
	return r.disabilities[i], nil
}

func (r *Registry) DisabilityByLabel(label string) (Disability, error) {
	i, ok := r.byLabel[label]
	if !ok {
		return Disability{}, fmt.Errorf("%w: %q", ErrUnknownDisability, label)
	}
	return r.disabilities[i], nil
}

// LookupDisability accepts either a key or a display label.
func (r *Registry) LookupDisability(keyOrLabel string) (Disability, error) {
	if d, err := r.DisabilityByKey(keyOrLabel); err == nil {
		return d, nil
	}
	return r.DisabilityByLabel(keyOrLabel)
}

// Artifacts lists every artifact id, classifiers first.
func (r *Registry) Artifacts() []string {
	ids := make([]string, 0, len(r.benefits)+len(r.disabilities))
	for _, b := range r.benefits {
		ids = append(ids, b.Artifact)
	}
	for _, d := range r.disabilities {
		ids = append(ids, d.Artifact)
	}
	return ids
}

// Manifest returns the registry in its on-disk form.
func (r *Registry) Manifest() Manifest {
	return Manifest{Benefits: r.Benefits(), Disabilities: r.Disabilities()}
}

// Save writes the registry as a YAML manifest.
func (r *Registry) Save(path string) error {
	data, err := yaml.Marshal(r.Manifest())
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %v", err)
	}
	return os.WriteFile(path, data, 0o644)
}
