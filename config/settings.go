// Package config holds the TOML configuration of a mapper and of a
// mapping case run from the command line.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/notargets/DGMapper/search"
)

// Settings configures one mapper. Zero numeric values take the defaults.
type Settings struct {
	MapperType          string  `toml:"mapper_type"`           // nearest_neighbor, nearest_element, barycentric
	EchoLevel           int     `toml:"echo_level"`            // 0 silent, 1 summary, 2 per query warnings, 3 debug
	SearchRadius        float64 `toml:"search_radius"`         // 0 selects an automatic radius
	MaxSearchIterations int     `toml:"max_search_iterations"` // Exact escalation rounds
	RadiusGrowth        float64 `toml:"radius_growth"`
	LocalCoordTolerance float64 `toml:"local_coord_tolerance"`
	InterpolationType   string  `toml:"interpolation_type"` // line, triangle, tetrahedra
	PoolSize            int     `toml:"pool_size"`
	Dimension           int     `toml:"dimension"` // Spatial dimension of vector and tensor fields
	Workers             int     `toml:"workers"`
}

// Default returns the settings of a nearest neighbor mapper in 3D
func Default() Settings {
	o := search.DefaultOptions(search.NearestNeighbor)
	return Settings{
		MapperType:          o.Kind.String(),
		EchoLevel:           1,
		MaxSearchIterations: o.MaxSearchIterations,
		RadiusGrowth:        o.RadiusGrowth,
		LocalCoordTolerance: o.LocalCoordTolerance,
		InterpolationType:   o.InterpolationType.String(),
		PoolSize:            o.PoolSize,
		Dimension:           3,
	}
}

// withDefaults fills zero values from Default
func (s Settings) withDefaults() Settings {
	d := Default()
	if s.MapperType == "" {
		s.MapperType = d.MapperType
	}
	if s.MaxSearchIterations == 0 {
		s.MaxSearchIterations = d.MaxSearchIterations
	}
	if s.RadiusGrowth == 0 {
		s.RadiusGrowth = d.RadiusGrowth
	}
	if s.LocalCoordTolerance == 0 {
		s.LocalCoordTolerance = d.LocalCoordTolerance
	}
	if s.InterpolationType == "" {
		s.InterpolationType = d.InterpolationType
	}
	if s.PoolSize == 0 {
		s.PoolSize = d.PoolSize
	}
	if s.Dimension == 0 {
		s.Dimension = d.Dimension
	}
	return s
}

// SearchOptions converts the settings to search options
func (s Settings) SearchOptions() (search.Options, error) {
	s = s.withDefaults()
	kind, err := search.ParseMapperKind(s.MapperType)
	if err != nil {
		return search.Options{}, err
	}
	interp, err := search.ParseInterpolationType(s.InterpolationType)
	if err != nil {
		return search.Options{}, err
	}
	o := search.DefaultOptions(kind)
	o.SearchRadius = s.SearchRadius
	o.MaxSearchIterations = s.MaxSearchIterations
	o.RadiusGrowth = s.RadiusGrowth
	o.LocalCoordTolerance = s.LocalCoordTolerance
	o.InterpolationType = interp
	o.PoolSize = s.PoolSize
	o.Workers = s.Workers
	return o, nil
}

// Validate reports the first invalid setting
func (s Settings) Validate() error {
	o, err := s.SearchOptions()
	if err != nil {
		return err
	}
	if err = o.Validate(); err != nil {
		return err
	}
	switch d := s.withDefaults().Dimension; {
	case d < 1 || d > 3:
		return fmt.Errorf("dimension must be 1, 2 or 3, got %d", d)
	case s.EchoLevel < 0:
		return fmt.Errorf("echo level must not be negative, got %d", s.EchoLevel)
	}
	return nil
}

// Resolved returns the settings with defaults applied
func (s Settings) Resolved() Settings { return s.withDefaults() }

// DecodeSettings reads settings from TOML
func DecodeSettings(r io.Reader) (Settings, error) {
	var s Settings
	if _, err := toml.NewDecoder(r).Decode(&s); err != nil {
		return Settings{}, fmt.Errorf("decoding mapper settings: %w", err)
	}
	return s, s.Validate()
}

// LoadSettings reads settings from a TOML file
func LoadSettings(path string) (Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()
	return DecodeSettings(f)
}
