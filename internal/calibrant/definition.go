package calibrant

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition describes a calibrant either by explicit d-spacings or by a
// cubic lattice from which they are generated.
type Definition struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description,omitempty"`
	DSpacings   []float64   `yaml:"d_spacings,omitempty"` // Å
	Lattice     *LatticeDef `yaml:"lattice,omitempty"`
	DMin        float64     `yaml:"d_min,omitempty"` // Å, lattice generation cut-off
}

// LatticeDef is the YAML form of a lattice.
type LatticeDef struct {
	System    string  `yaml:"system"`
	Centering string  `yaml:"centering"`
	A         float64 `yaml:"a"` // Å
}

// Validate checks that the definition can produce d-spacings.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("calibrant name is required")
	}
	if len(d.DSpacings) == 0 && d.Lattice == nil {
		return fmt.Errorf("calibrant %q needs d_spacings or a lattice", d.Name)
	}
	if d.Lattice != nil {
		if sys := strings.ToLower(d.Lattice.System); sys != "" && sys != "cubic" {
			return fmt.Errorf("calibrant %q: unsupported lattice system %q", d.Name, d.Lattice.System)
		}
		if !(d.Lattice.A > 0) {
			return fmt.Errorf("calibrant %q: lattice parameter must be positive", d.Name)
		}
	}
	return nil
}

// Build resolves the definition into a Calibrant at the given wavelength (m).
func (d *Definition) Build(wavelength float64) (*Calibrant, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	ds := d.DSpacings
	if len(ds) == 0 {
		centering, err := ParseCentering(d.Lattice.Centering)
		if err != nil {
			return nil, fmt.Errorf("calibrant %q: %w", d.Name, err)
		}
		ds, err = Cubic{A: d.Lattice.A, Centering: centering}.DSpacings(d.DMin)
		if err != nil {
			return nil, fmt.Errorf("calibrant %q: %w", d.Name, err)
		}
	}
	return New(d.Name, ds, wavelength)
}

// LoadFile reads a definition from a pyFAI-style .D file or a YAML file.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return parseYAML(data)
	default:
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		return parseD(name, data)
	}
}

// parseD reads one d-spacing (Å) per line; the first token counts and
// everything after '#' is a comment.
func parseD(name string, data []byte) (*Definition, error) {
	def := &Definition{Name: name}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		d, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", name, lineNo, err)
		}
		def.DSpacings = append(def.DSpacings, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func parseYAML(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("invalid calibrant definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}
