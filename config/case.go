package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/notargets/DGMapper/partitions"
)

// Case describes a complete mapping run: two meshes, the field mapped
// between them and the mapper settings.
type Case struct {
	Ranks             int    `toml:"ranks"`              // In-process ranks
	PartitionStrategy string `toml:"partition_strategy"` // block, round_robin, space_filling_curve, recursive_bisection
	Output            string `toml:"output"`             // CSV of destination values, empty for stdout

	Origin      MeshSpec  `toml:"origin"`
	Destination MeshSpec  `toml:"destination"`
	Field       FieldSpec `toml:"field"`
	Options     MapSpec   `toml:"options"`
	Mapper      Settings  `toml:"mapper"`
}

// MeshSpec selects a mesh file or a generated structured grid
type MeshSpec struct {
	File string    `toml:"file"`
	Grid *GridSpec `toml:"grid"`
	// Use only the nodes, not the elements
	PointsOnly bool `toml:"points_only"`
}

// GridSpec is a structured grid; zero cell counts collapse a direction
type GridSpec struct {
	Cells [3]int     `toml:"cells"`
	Min   [3]float64 `toml:"min"`
	Max   [3]float64 `toml:"max"`
}

// FieldSpec defines the origin field by one expression per component in
// the variables x, y and z
type FieldSpec struct {
	Name        string   `toml:"name"`
	Type        string   `toml:"type"` // scalar, vector, tensor
	Expressions []string `toml:"expressions"`
}

// MapSpec mirrors the mapping options
type MapSpec struct {
	SwapSign     bool `toml:"swap_sign"`
	AddValues    bool `toml:"add_values"`
	Conservative bool `toml:"conservative"`
	Inverse      bool `toml:"inverse"` // Map destination to origin
}

// Validate checks the case for missing or inconsistent entries
func (c *Case) Validate() error {
	if c.Ranks == 0 {
		c.Ranks = 1
	}
	if c.Ranks < 0 {
		return fmt.Errorf("ranks must be positive, got %d", c.Ranks)
	}
	if c.PartitionStrategy == "" {
		c.PartitionStrategy = partitions.RecursiveBisection.String()
	}
	if _, err := partitions.ParsePartitionStrategy(c.PartitionStrategy); err != nil {
		return err
	}
	for name, m := range map[string]MeshSpec{"origin": c.Origin, "destination": c.Destination} {
		if (m.File == "") == (m.Grid == nil) {
			return fmt.Errorf("%s mesh needs exactly one of file or grid", name)
		}
	}
	if c.Field.Name == "" {
		c.Field.Name = "FIELD"
	}
	if c.Field.Type == "" {
		c.Field.Type = "scalar"
	}
	if len(c.Field.Expressions) == 0 {
		return errors.New("field needs at least one expression")
	}
	return c.Mapper.Validate()
}

// DecodeCase reads a case from TOML and validates it
func DecodeCase(r io.Reader) (*Case, error) {
	c := new(Case)
	if _, err := toml.NewDecoder(r).Decode(c); err != nil {
		return nil, fmt.Errorf("decoding case: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadCase reads a case file
func LoadCase(path string) (*Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeCase(f)
}
