package calibrant

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// builtins are cubic standards commonly used for detector calibration.
var builtins = []Definition{
	{Name: "LaB6", Description: "Lanthanum hexaboride (NIST SRM 660)", Lattice: &LatticeDef{System: "cubic", Centering: "P", A: 4.1569162}},
	{Name: "CeO2", Description: "Cerium dioxide (NIST SRM 674b)", Lattice: &LatticeDef{System: "cubic", Centering: "F", A: 5.411651}},
	{Name: "Si", Description: "Silicon (NIST SRM 640d)", Lattice: &LatticeDef{System: "cubic", Centering: "diamond", A: 5.431194}},
	{Name: "Au", Description: "Gold", Lattice: &LatticeDef{System: "cubic", Centering: "F", A: 4.07846}},
	{Name: "Al", Description: "Aluminium", Lattice: &LatticeDef{System: "cubic", Centering: "F", A: 4.04950}},
	{Name: "Cu", Description: "Copper", Lattice: &LatticeDef{System: "cubic", Centering: "F", A: 3.61491}},
}

// definitionExts are the file extensions tried, in order, when resolving a
// name inside the registry directory.
var definitionExts = []string{".D", ".yaml", ".yml"}

// Registry resolves calibrant identifiers to definitions. Built-ins are
// always available; Dir, when set, adds definition files.
type Registry struct {
	Dir string
}

// NewRegistry creates a registry that also searches dir for definition files.
func NewRegistry(dir string) *Registry {
	return &Registry{Dir: dir}
}

// Lookup returns the definition for an identifier: an existing file path,
// a built-in name (case-insensitive) or a file in the registry directory.
func (r *Registry) Lookup(identifier string) (*Definition, error) {
	if identifier == "" {
		return nil, fmt.Errorf("%w: empty identifier", ErrNotFound)
	}

	if info, err := os.Stat(identifier); err == nil && !info.IsDir() {
		def, err := LoadFile(identifier)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, identifier, err)
		}
		return def, nil
	}

	for i := range builtins {
		if strings.EqualFold(builtins[i].Name, identifier) {
			def := builtins[i]
			return &def, nil
		}
	}

	if r.Dir != "" {
		for _, ext := range definitionExts {
			path := filepath.Join(r.Dir, identifier+ext)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			def, err := LoadFile(path)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
			}
			return def, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, identifier)
}

// Load resolves an identifier and builds the calibrant at wavelength (m).
func (r *Registry) Load(identifier string, wavelength float64) (*Calibrant, error) {
	def, err := r.Lookup(identifier)
	if err != nil {
		return nil, err
	}
	c, err := def.Build(wavelength)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, identifier, err)
	}
	return c, nil
}

// Names lists built-in calibrants plus definition files in the registry
// directory, sorted and without duplicates.
func (r *Registry) Names() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		key := strings.ToLower(name)
		if !seen[key] {
			seen[key] = true
			names = append(names, name)
		}
	}

	for _, def := range builtins {
		add(def.Name)
	}

	if r.Dir != "" {
		entries, err := os.ReadDir(r.Dir)
		if err == nil {
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				ext := filepath.Ext(e.Name())
				for _, known := range definitionExts {
					if strings.EqualFold(ext, known) {
						add(strings.TrimSuffix(e.Name(), ext))
						break
					}
				}
			}
		}
	}

	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
	return names
}
