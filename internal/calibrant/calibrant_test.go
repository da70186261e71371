package calibrant

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

const lambda = 0.4133e-10

func TestBuiltinLaB6(t *testing.T) {
	reg := NewRegistry("")
	c, err := reg.Load("lab6", lambda)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Name() != "LaB6" {
		t.Errorf("Name = %q, want LaB6", c.Name())
	}

	ds := c.DSpacings()
	want := []float64{4.1569162, 4.1569162 / math.Sqrt2, 4.1569162 / math.Sqrt(3), 4.1569162 / 2}
	for i, w := range want {
		if math.Abs(ds[i]-w) > 1e-9 {
			t.Errorf("d[%d] = %v, want %v", i, ds[i], w)
		}
	}

	angles := c.Angles()
	first := 2 * math.Asin(lambda/(2*4.1569162e-10))
	if math.Abs(angles[0]-first) > 1e-12 {
		t.Errorf("angle[0] = %v, want %v", angles[0], first)
	}
	for i := 1; i < len(angles); i++ {
		if angles[i] <= angles[i-1] {
			t.Fatalf("angles not ascending at %d", i)
		}
	}
}

func TestReflectionConditions(t *testing.T) {
	tests := []struct {
		name  string
		cubic Cubic
		nVals []float64 // first allowed h²+k²+l²
	}{
		{"primitive", Cubic{A: 1, Centering: CenteringPrimitive}, []float64{1, 2, 3, 4, 5, 6, 8, 9}},
		{"body", Cubic{A: 1, Centering: CenteringBody}, []float64{2, 4, 6, 8, 10, 12}},
		{"face", Cubic{A: 1, Centering: CenteringFace}, []float64{3, 4, 8, 11, 12, 16}},
		{"diamond", Cubic{A: 1, Centering: CenteringDiamond}, []float64{3, 8, 11, 16, 19, 24}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := tt.cubic.DSpacings(0.2)
			if err != nil {
				t.Fatal(err)
			}
			for i, n := range tt.nVals {
				want := 1 / math.Sqrt(n)
				if math.Abs(ds[i]-want) > 1e-12 {
					t.Errorf("d[%d] = %v, want %v (N=%v)", i, ds[i], want, n)
				}
			}
		})
	}
}

func TestWithWavelengthRecomputes(t *testing.T) {
	c, err := New("test", []float64{2, 3, 1}, 1e-10)
	if err != nil {
		t.Fatal(err)
	}
	before := c.Angles()
	shorter := c.WithWavelength(0.5e-10)
	after := shorter.Angles()

	if len(before) != 3 || len(after) != 3 {
		t.Fatalf("ring counts %d/%d, want 3", len(before), len(after))
	}
	for i := range before {
		if !(after[i] < before[i]) {
			t.Errorf("ring %d: shorter wavelength should give smaller angle", i)
		}
	}
	if c.Wavelength() != 1e-10 {
		t.Error("WithWavelength must not modify the original")
	}
}

func TestUnobservableRingsDropped(t *testing.T) {
	// λ = 3 Å only reaches d >= 1.5 Å
	c, err := New("test", []float64{4, 2, 1.2, 0.9}, 3e-10)
	if err != nil {
		t.Fatal(err)
	}
	if c.RingCount() != 2 {
		t.Errorf("RingCount = %d, want 2", c.RingCount())
	}
	if _, ok := c.Angle(2); ok {
		t.Error("ring 2 should be unobservable")
	}
	if len(c.DSpacings()) != 4 {
		t.Error("d-spacings must be kept")
	}
}

func TestNewRejectsInvalid(t *testing.T) {
	if _, err := New("x", nil, 1e-10); err == nil {
		t.Error("expected error for empty d-spacings")
	}
	if _, err := New("x", []float64{1, -2}, 1e-10); err == nil {
		t.Error("expected error for negative d-spacing")
	}
}

func TestLoadDFile(t *testing.T) {
	dir := t.TempDir()
	content := "# test calibrant\n3.1 # (1,1,1)\n\n2.7\n1.9 extra columns\n"
	if err := os.WriteFile(filepath.Join(dir, "Mine.D"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry(dir)
	c, err := reg.Load("Mine", lambda)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.RingCount() != 3 {
		t.Errorf("RingCount = %d, want 3", c.RingCount())
	}

	byPath, err := reg.Load(filepath.Join(dir, "Mine.D"), lambda)
	if err != nil {
		t.Fatalf("Load by path: %v", err)
	}
	if byPath.Name() != "Mine" {
		t.Errorf("Name = %q, want Mine", byPath.Name())
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	content := `name: Ni
description: nickel
lattice:
  system: cubic
  centering: F
  a: 3.5238
d_min: 1.0
`
	if err := os.WriteFile(filepath.Join(dir, "Ni.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := NewRegistry(dir).Load("Ni", lambda)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ds := c.DSpacings()
	if math.Abs(ds[0]-3.5238/math.Sqrt(3)) > 1e-9 {
		t.Errorf("d[0] = %v", ds[0])
	}
	if ds[len(ds)-1] < 1.0 {
		t.Errorf("d_min not honoured: %v", ds[len(ds)-1])
	}
}

func TestLoadNotFound(t *testing.T) {
	reg := NewRegistry(t.TempDir())
	tests := []string{"", "Unobtainium", "/does/not/exist.D"}
	for _, id := range tests {
		if _, err := reg.Load(id, lambda); !errors.Is(err, ErrNotFound) {
			t.Errorf("Load(%q) error = %v, want ErrNotFound", id, err)
		}
	}
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Bad.D")
	if err := os.WriteFile(path, []byte("abc\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewRegistry(dir).Load("Bad", lambda); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for malformed file, got %v", err)
	}
}

func TestNames(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "Zr.D"), []byte("2.0\n"), 0o644)
	os.WriteFile(filepath.Join(dir, "lab6.D"), []byte("2.0\n"), 0o644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)

	names := NewRegistry(dir).Names()
	want := []string{"Al", "Au", "CeO2", "Cu", "LaB6", "Si", "Zr"}
	if len(names) != len(want) {
		t.Fatalf("Names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
