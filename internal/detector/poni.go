package detector

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidPONI is returned when a file does not hold a usable geometry.
var ErrInvalidPONI = errors.New("invalid PONI file")

const poniVersion = 2

// defaultOrientation is pyFAI's detector orientation 3: origin at the
// top-left pixel, rows down, columns right. Files older than version 2.1
// carry no orientation and are read as this one.
const defaultOrientation = 3

// PONI is a persisted geometry: the textual key/value format shared with
// pyFAI. Keys absent from a file are left to the seed geometry in Apply.
type PONI struct {
	Version  float64 // 1, 2 or 2.1
	Detector string
	MaxShape []int // rows, cols; optional
	Geometry Geometry

	present map[string]bool
}

// detectorConfig is the JSON payload of the version 2 Detector_config key.
// Version 2.1 adds orientation.
type detectorConfig struct {
	Pixel1      float64 `json:"pixel1"`
	Pixel2      float64 `json:"pixel2"`
	MaxShape    []int   `json:"max_shape,omitempty"`
	Orientation int     `json:"orientation,omitempty"`
}

// NewPONI wraps a geometry for saving.
func NewPONI(g Geometry, width, height int) *PONI {
	p := &PONI{
		Version:  poniVersion,
		Detector: "Detector",
		Geometry: g,
		present:  map[string]bool{},
	}
	if width > 0 && height > 0 {
		p.MaxShape = []int{height, width}
	}
	for _, k := range []string{"distance", "poni1", "poni2", "rot1", "rot2", "rot3", "pixel1", "pixel2", "wavelength"} {
		p.present[k] = true
	}
	return p
}

// Has reports whether the file defined a parameter (lower-case key:
// distance, poni1, poni2, rot1, rot2, rot3, pixel1, pixel2, wavelength).
func (p *PONI) Has(key string) bool {
	return p.present[key]
}

// Apply overlays the parameters present in the file onto seed.
func (p *PONI) Apply(seed Geometry) Geometry {
	g := seed
	set := func(key string, dst *float64, v float64) {
		if p.present[key] {
			*dst = v
		}
	}
	set("distance", &g.Distance, p.Geometry.Distance)
	set("poni1", &g.Poni1, p.Geometry.Poni1)
	set("poni2", &g.Poni2, p.Geometry.Poni2)
	set("rot1", &g.Rot1, p.Geometry.Rot1)
	set("rot2", &g.Rot2, p.Geometry.Rot2)
	set("rot3", &g.Rot3, p.Geometry.Rot3)
	set("pixel1", &g.PixelSize1, p.Geometry.PixelSize1)
	set("pixel2", &g.PixelSize2, p.Geometry.PixelSize2)
	set("wavelength", &g.Wavelength, p.Geometry.Wavelength)
	return g
}

// ReadPONI parses a PONI stream. Version 1 (PixelSize1/PixelSize2) and
// version 2 and 2.1 (Detector_config) files are accepted. A 2.1 detector
// orientation other than the default is rejected, since the pixel
// coordinates here are always read in the default orientation.
func ReadPONI(r io.Reader) (*PONI, error) {
	p := &PONI{Version: 1, present: map[string]bool{}}
	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: line %d: missing ':'", ErrInvalidPONI, lineNo)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		var dst *float64
		name := key
		switch key {
		case "poni_version":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidPONI, lineNo, err)
			}
			p.Version = v
			continue
		case "detector":
			p.Detector = value
			continue
		case "detector_config":
			var cfg detectorConfig
			if err := json.Unmarshal([]byte(value), &cfg); err != nil {
				return nil, fmt.Errorf("%w: line %d: detector config: %v", ErrInvalidPONI, lineNo, err)
			}
			if cfg.Orientation != 0 && cfg.Orientation != defaultOrientation {
				return nil, fmt.Errorf("%w: line %d: unsupported detector orientation %d", ErrInvalidPONI, lineNo, cfg.Orientation)
			}
			if cfg.Pixel1 != 0 {
				p.Geometry.PixelSize1 = cfg.Pixel1
				p.present["pixel1"] = true
			}
			if cfg.Pixel2 != 0 {
				p.Geometry.PixelSize2 = cfg.Pixel2
				p.present["pixel2"] = true
			}
			p.MaxShape = cfg.MaxShape
			continue
		case "distance":
			dst = &p.Geometry.Distance
		case "poni1":
			dst = &p.Geometry.Poni1
		case "poni2":
			dst = &p.Geometry.Poni2
		case "rot1":
			dst = &p.Geometry.Rot1
		case "rot2":
			dst = &p.Geometry.Rot2
		case "rot3":
			dst = &p.Geometry.Rot3
		case "pixelsize1":
			dst, name = &p.Geometry.PixelSize1, "pixel1"
		case "pixelsize2":
			dst, name = &p.Geometry.PixelSize2, "pixel2"
		case "wavelength":
			dst = &p.Geometry.Wavelength
		default:
			// Unknown keys (SplineFile, calibrant, ...) are carried by other tools.
			continue
		}

		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %s: %v", ErrInvalidPONI, lineNo, key, err)
		}
		*dst = v
		p.present[name] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPONI, err)
	}

	for _, required := range []string{"distance", "poni1", "poni2"} {
		if !p.present[required] {
			return nil, fmt.Errorf("%w: missing %s", ErrInvalidPONI, required)
		}
	}
	if !(p.Geometry.Distance > 0) {
		return nil, fmt.Errorf("%w: distance must be positive", ErrInvalidPONI)
	}
	return p, nil
}

// Write serialises the file. Floats use the shortest representation that
// parses back to the identical value.
func (p *PONI) Write(w io.Writer) error {
	g := p.Geometry
	cfg, err := json.Marshal(detectorConfig{Pixel1: g.PixelSize1, Pixel2: g.PixelSize2, MaxShape: p.MaxShape})
	if err != nil {
		return err
	}
	detector := p.Detector
	if detector == "" {
		detector = "Detector"
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# Nota: C-Order, 1 refers to the Y axis, 2 to the X axis\n")
	fmt.Fprintf(bw, "# Calibration written on %s\n", time.Now().UTC().Format(time.RFC1123))
	fmt.Fprintf(bw, "poni_version: %d\n", poniVersion)
	fmt.Fprintf(bw, "Detector: %s\n", detector)
	fmt.Fprintf(bw, "Detector_config: %s\n", cfg)
	for _, kv := range []struct {
		key string
		v   float64
	}{
		{"Distance", g.Distance},
		{"Poni1", g.Poni1},
		{"Poni2", g.Poni2},
		{"Rot1", g.Rot1},
		{"Rot2", g.Rot2},
		{"Rot3", g.Rot3},
		{"Wavelength", g.Wavelength},
	} {
		fmt.Fprintf(bw, "%s: %s\n", kv.key, strconv.FormatFloat(kv.v, 'g', -1, 64))
	}
	return bw.Flush()
}

// LoadPONI reads a PONI file from disk.
func LoadPONI(path string) (*PONI, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, err := ReadPONI(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Save writes the file to disk.
func (p *PONI) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
