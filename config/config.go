// Package config loads the structural tuning of the destruction service.
package config

import (
	"bytes"
	_ "embed"
	"os"

	"github.com/aukilabs/brotna/models"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const (
	ErrTypeInvalidTuning = "invalid_tuning"

	schemaURL = "tuning.schema.json"
)

//go:embed tuning.schema.json
var schema []byte

// Tuning is the structural tuning of the service.
type Tuning struct {
	Destructible models.DestructibleSettings `json:"destructible" yaml:"destructible"`
	Wall         Wall                        `json:"wall"         yaml:"wall"`
	Impacts      Impacts                     `json:"impacts"      yaml:"impacts"`
}

// Wall is the box destructible created at startup.
type Wall struct {
	Name string     `json:"name" yaml:"name"`
	Min  mgl64.Vec3 `json:"min"  yaml:"min"`
	Max  mgl64.Vec3 `json:"max"  yaml:"max"`
}

// Impacts configures the impact generator.
type Impacts struct {
	// The number of impacts per second. 0 disables the generator.
	Rate float64 `json:"rate" yaml:"rate"`

	MinRadius float64 `json:"min_radius" yaml:"min_radius"`
	MaxRadius float64 `json:"max_radius" yaml:"max_radius"`

	// The fraction of penetrating impacts.
	PenetratingRatio float64 `json:"penetrating_ratio" yaml:"penetrating_ratio"`

	Seed uint64 `json:"seed" yaml:"seed"`
}

func Default() Tuning {
	return Tuning{
		Destructible: models.DefaultDestructibleSettings(),
		Wall: Wall{
			Name: "wall",
			Min:  mgl64.Vec3{0, 0, 0},
			Max:  mgl64.Vec3{8, 0.5, 4},
		},
		Impacts: Impacts{
			MinRadius:        0.2,
			MaxRadius:        0.6,
			PenetratingRatio: 0.25,
			Seed:             1,
		},
	}
}

// Load returns the default tuning overridden by the YAML document at path.
// An empty path returns the default tuning.
func Load(path string) (Tuning, error) {
	t := Default()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return t, errors.New("reading tuning file failed").
			WithTag("path", path).
			Wrap(err)
	}

	if err := Decode(data, &t); err != nil {
		return t, errors.New("loading tuning file failed").
			WithType(ErrTypeInvalidTuning).
			WithTag("path", path).
			Wrap(err)
	}
	return t, nil
}

// Decode validates a YAML tuning document and decodes it over t.
func Decode(data []byte, t *Tuning) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errors.New("parsing tuning failed").
			WithType(ErrTypeInvalidTuning).
			Wrap(err)
	}
	if doc == nil {
		return nil
	}

	s, err := compileSchema()
	if err != nil {
		return err
	}
	if err := s.Validate(doc); err != nil {
		return errors.New("tuning does not match its schema").
			WithType(ErrTypeInvalidTuning).
			Wrap(err)
	}

	if err := yaml.Unmarshal(data, t); err != nil {
		return errors.New("decoding tuning failed").
			WithType(ErrTypeInvalidTuning).
			Wrap(err)
	}
	return t.Validate()
}

func compileSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, bytes.NewReader(schema)); err != nil {
		return nil, errors.New("adding tuning schema failed").Wrap(err)
	}

	s, err := c.Compile(schemaURL)
	if err != nil {
		return nil, errors.New("compiling tuning schema failed").Wrap(err)
	}
	return s, nil
}

// Validate checks the constraints the schema cannot express.
func (t Tuning) Validate() error {
	for i := 0; i < 3; i++ {
		if t.Wall.Min[i] >= t.Wall.Max[i] {
			return errors.New("wall min must be below wall max").
				WithType(ErrTypeInvalidTuning).
				WithTag("min", t.Wall.Min).
				WithTag("max", t.Wall.Max)
		}
	}

	if t.Impacts.MinRadius > t.Impacts.MaxRadius {
		return errors.New("impact min radius must not exceed max radius").
			WithType(ErrTypeInvalidTuning).
			WithTag("min_radius", t.Impacts.MinRadius).
			WithTag("max_radius", t.Impacts.MaxRadius)
	}

	if err := t.Destructible.CellStructure.Validate(); err != nil {
		return errors.New("invalid cell structure settings").
			WithType(ErrTypeInvalidTuning).
			Wrap(err)
	}
	return nil
}
