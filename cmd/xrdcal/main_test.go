package main

import (
	"bytes"
	"encoding/json"
	goimage "image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"xrd-calib/internal/detector"
	"xrd-calib/internal/integrate"
)

func TestParseSeed(t *testing.T) {
	tests := []struct {
		in      string
		want    seed
		wantErr bool
	}{
		{"1179.6,1129.4,0", seed{1179.6, 1129.4, 0}, false},
		{" 10 , 20 , 3 ", seed{10, 20, 3}, false},
		{"10,20", seed{}, true},
		{"a,20,0", seed{}, true},
		{"10,b,0", seed{}, true},
		{"10,20,-1", seed{}, true},
		{"10,20,1.5", seed{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSeed(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSeed(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseSeed(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestOutputTo(t *testing.T) {
	data := map[string]float64{"distance": 0.1}

	var buf bytes.Buffer
	if err := outputTo(&buf, OutputFormatJSON, data); err != nil {
		t.Fatal(err)
	}
	var back map[string]float64
	if err := json.Unmarshal(buf.Bytes(), &back); err != nil || back["distance"] != 0.1 {
		t.Errorf("json output %q", buf.String())
	}

	buf.Reset()
	if err := outputTo(&buf, OutputFormatYAML, data); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "distance: 0.1" {
		t.Errorf("yaml output %q", buf.String())
	}

	if err := outputTo(&buf, "xml", data); err == nil {
		t.Error("expected error for unknown format")
	}
	if err := setOutputFormat("table"); err == nil {
		t.Error("setOutputFormat should reject unknown formats")
	}
}

func writeMask(t *testing.T, w, h int, masked goimage.Point) string {
	t.Helper()
	img := goimage.NewGray16(goimage.Rect(0, 0, w, h))
	img.SetGray16(masked.X, masked.Y, color.Gray16{Y: 1})
	path := filepath.Join(t.TempDir(), "mask.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMask(t *testing.T) {
	path := writeMask(t, 8, 6, goimage.Pt(3, 2))

	mask, err := loadMask(path, 8, 6)
	if err != nil {
		t.Fatalf("loadMask: %v", err)
	}
	count := 0
	for _, m := range mask {
		if m {
			count++
		}
	}
	if count != 1 || !mask[2*8+3] {
		t.Errorf("mask has %d excluded pixels, want only (3,2)", count)
	}

	if _, err := loadMask(path, 6, 8); err == nil {
		t.Error("expected shape error")
	}
}

func TestParamsCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	g := detector.Geometry{
		Distance: 0.1, Poni1: 0.03, Poni2: 0.03,
		PixelSize1: 100e-6, PixelSize2: 100e-6, Wavelength: 0.5e-10,
	}
	poni := filepath.Join(dir, "cal.poni")
	if err := detector.NewPONI(g, 600, 600).Save(poni); err != nil {
		t.Fatal(err)
	}

	rootCmd.SetArgs([]string{"params", poni, "--output", "json"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("params: %v", err)
	}

	rootCmd.SetArgs([]string{"params", filepath.Join(dir, "absent.poni")})
	if err := rootCmd.Execute(); err == nil {
		t.Error("params on a missing file should fail")
	}
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	path := filepath.Join(dir, "cfg", "xrdcal.yaml")

	rootCmd.SetArgs([]string{"config", "init", path})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	rootCmd.SetArgs([]string{"config", "show", "--config", path})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("config show: %v", err)
	}
	if got := cfgManager.Get().Integration.Unit; got != string(integrate.TwoThetaDeg) {
		t.Errorf("unit = %q", got)
	}
}
