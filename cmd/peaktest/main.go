// Command peaktest runs peak searches on a detector image and prints the
// points found.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strings"

	"xrd-calib/internal/calibrant"
	"xrd-calib/internal/detector"
	"xrd-calib/internal/image"
	"xrd-calib/internal/peaks"
	"xrd-calib/pkg/geometry"
)

func main() {
	imagePath := flag.String("image", "", "Path to detector image (TIFF, PNG, or JPEG)")
	x := flag.Float64("x", -1, "Seed column (px)")
	y := flag.Float64("y", -1, "Seed row (px)")
	window := flag.Int("window", 10, "Local maximum window (px)")
	alg := flag.String("alg", "massif", "Algorithm: massif or blob")
	poniPath := flag.String("poni", "", "PONI file; with -calibrant, search a whole ring")
	calibrantName := flag.String("calibrant", "", "Calibrant name or file for ring search")
	ring := flag.Int("ring", 0, "Ring index for ring search")
	delta := flag.Float64("delta", 0.1, "Ring band half-width (deg)")
	upper := flag.Float64("upper", 55000, "Saturation ceiling")
	defaults := peaks.DefaultParams()
	smooth := flag.Float64("smooth", defaults.SmoothSigma, "Massif smoothing sigma (px)")
	valley := flag.Float64("valley", defaults.ValleySigma, "Massif background sigma (px)")
	median := flag.Int("median", defaults.MedianSize, "Median filter size: 3 or 5")
	maxPeaks := flag.Int("max-peaks", defaults.MaxPeaks, "Peaks kept per massif")
	blobSmall := flag.Float64("blob-small", defaults.BlobSigmaSmall, "Inner blob sigma (px)")
	blobLarge := flag.Float64("blob-large", defaults.BlobSigmaLarge, "Outer blob sigma (px)")
	fallback := flag.Int("fallback", defaults.FallbackWindow, "Blob fallback window (px)")
	flag.Parse()

	if *imagePath == "" {
		fmt.Println("Usage: peaktest -image <path> -x <col> -y <row> [-alg massif|blob] [-window 10]")
		fmt.Println("       peaktest -image <path> -poni <file> -calibrant <name> [-ring 0] [-delta 0.1]")
		os.Exit(1)
	}

	frame, err := image.Load(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load image: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded image: %dx%d pixels\n", frame.Width, frame.Height)

	algorithm, err := peaks.ParseAlgorithm(*alg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	finder, err := peaks.NewFinder(frame, defaults.
		WithSmoothing(*smooth, *valley).
		WithMedianSize(*median).
		WithMaxPeaks(*maxPeaks).
		WithBlobSigmas(*blobSmall, *blobLarge).
		WithFallbackWindow(*fallback))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to prepare finder: %v\n", err)
		os.Exit(1)
	}

	// Out-of-range flags fall back to defaults inside the finder.
	params := finder.Params()
	fmt.Printf("\nSearch parameters:\n")
	fmt.Printf("  Smoothing: sigma %.1f, valley sigma %.1f, median %d\n",
		params.SmoothSigma, params.ValleySigma, params.MedianSize)
	fmt.Printf("  Blob DoG sigmas: %.1f / %.1f\n", params.BlobSigmaSmall, params.BlobSigmaLarge)
	fmt.Printf("  Max peaks: %d, fallback window: %d px\n", params.MaxPeaks, params.FallbackWindow)

	if *poniPath != "" {
		searchRing(frame, finder, *poniPath, *calibrantName, *ring, *delta, *upper, algorithm)
		return
	}

	if *x < 0 || *y < 0 {
		fmt.Fprintln(os.Stderr, "Seed -x and -y are required without -poni")
		os.Exit(1)
	}

	local := peaks.LocalMaximum(frame, *x, *y, *window)
	printPoints(frame, fmt.Sprintf("Local maximum (window %d)", *window), local.Points)

	seed := geometry.Point2D{X: *x, Y: *y}
	var result peaks.Result
	switch algorithm {
	case peaks.Blob:
		win := geometry.Window(*x, *y, params.FallbackWindow)
		result, err = finder.Blob(win, math.Inf(-1), params.MaxPeaks)
	default:
		result, err = finder.FindPeaksAutomatic(seed)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	printPoints(frame, fmt.Sprintf("%s from (%.1f, %.1f)", algorithm, *x, *y), result.Points)
}

func searchRing(frame *image.Frame, finder *peaks.Finder, poniPath, name string, ring int, deltaDeg, upper float64, alg peaks.Algorithm) {
	if name == "" {
		fmt.Fprintln(os.Stderr, "-calibrant is required with -poni")
		os.Exit(1)
	}
	poni, err := detector.LoadPONI(poniPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load PONI: %v\n", err)
		os.Exit(1)
	}
	g := poni.Apply(detector.Geometry{})
	if err := g.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "PONI file is incomplete: %v\n", err)
		os.Exit(1)
	}
	c, err := calibrant.NewRegistry("").Load(name, g.Wavelength)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load calibrant: %v\n", err)
		os.Exit(1)
	}
	target, ok := c.Angle(ring)
	if !ok {
		fmt.Fprintf(os.Stderr, "Ring %d out of range, %s has %d rings\n", ring, c.Name(), c.RingCount())
		os.Exit(1)
	}
	fmt.Printf("\nRing %d of %s at 2θ = %.4f°, band ±%.3f°\n", ring, c.Name(), target*180/math.Pi, deltaDeg)

	tth := g.TwoThetaMap(frame.Width, frame.Height)
	result := finder.SearchRing(tth, target, deltaDeg*math.Pi/180, upper, alg)
	printPoints(frame, fmt.Sprintf("%s ring search", alg), result.Points)
}

func printPoints(frame *image.Frame, title string, pts []geometry.Point2D) {
	fmt.Printf("\n%s: %d points\n", title, len(pts))
	if len(pts) == 0 {
		return
	}
	fmt.Printf("%-6s %10s %10s %12s\n", "#", "X", "Y", "Intensity")
	fmt.Println(strings.Repeat("-", 41))
	for i, p := range pts {
		q := p.Round()
		fmt.Printf("%-6d %10.2f %10.2f %12.1f\n", i, p.X, p.Y, frame.At(q.X, q.Y))
	}
}
