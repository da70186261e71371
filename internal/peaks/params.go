package peaks

// Params holds tuning for the image-based peak searches.
// See DefaultParams for typical values.
type Params struct {
	// Massif
	SmoothSigma float64 // Gaussian sigma (px) of the image that is hill-climbed
	ValleySigma float64 // Gaussian sigma (px) of the background the median must exceed
	MedianSize  int     // Median filter aperture (3 or 5 for float images)
	MaxPeaks    int     // Peaks kept from one massif

	// Blob
	BlobSigmaSmall float64 // Inner Gaussian of the difference-of-Gaussians
	BlobSigmaLarge float64 // Outer Gaussian of the difference-of-Gaussians

	// FallbackWindow is the side (px) of the blob search window used when a
	// massif search around a seed finds nothing.
	FallbackWindow int
}

// DefaultParams returns parameters suited to powder rings a few pixels wide.
func DefaultParams() Params {
	return Params{
		SmoothSigma: 1.0,
		ValleySigma: 8.0,
		MedianSize:  3,
		MaxPeaks:    200, // Same cap as pyFAI's massif

		BlobSigmaSmall: 1.0,
		BlobSigmaLarge: 3.0,

		FallbackWindow: 40,
	}
}

// WithSmoothing returns a copy of p with the massif filter widths replaced.
func (p Params) WithSmoothing(smoothSigma, valleySigma float64) Params {
	p.SmoothSigma = smoothSigma
	p.ValleySigma = valleySigma
	return p
}

// WithMedianSize returns a copy of p with a different median aperture.
func (p Params) WithMedianSize(size int) Params {
	p.MedianSize = size
	return p
}

// WithMaxPeaks returns a copy of p keeping at most n massif peaks.
func (p Params) WithMaxPeaks(n int) Params {
	p.MaxPeaks = n
	return p
}

// WithBlobSigmas returns a copy of p with custom difference-of-Gaussians widths.
func (p Params) WithBlobSigmas(small, large float64) Params {
	p.BlobSigmaSmall = small
	p.BlobSigmaLarge = large
	return p
}

// WithFallbackWindow returns a copy of p with a different blob fallback window.
func (p Params) WithFallbackWindow(size int) Params {
	p.FallbackWindow = size
	return p
}

// normalized fills zero or invalid fields with defaults.
func (p Params) normalized() Params {
	d := DefaultParams()
	if !(p.SmoothSigma > 0) {
		p.SmoothSigma = d.SmoothSigma
	}
	if !(p.ValleySigma > 0) {
		p.ValleySigma = d.ValleySigma
	}
	if p.MedianSize != 3 && p.MedianSize != 5 {
		p.MedianSize = d.MedianSize
	}
	if p.MaxPeaks <= 0 {
		p.MaxPeaks = d.MaxPeaks
	}
	if !(p.BlobSigmaSmall > 0) {
		p.BlobSigmaSmall = d.BlobSigmaSmall
	}
	if !(p.BlobSigmaLarge > p.BlobSigmaSmall) {
		p.BlobSigmaLarge = 3 * p.BlobSigmaSmall
	}
	if p.FallbackWindow <= 0 {
		p.FallbackWindow = d.FallbackWindow
	}
	return p
}
