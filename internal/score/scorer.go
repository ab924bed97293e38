// Package score implements the quality scoring function used to choose
// the best version inside a duplicate group. Scoring is a pure function
// of its recorded inputs: replaying it on the same inputs yields the
// same score and grade.
package score

import (
	"math"
	"path/filepath"
	"strings"
)

// Weights for the four score components. They should sum to 1.0.
type Weights struct {
	Technical     float64
	AudioFidelity float64
	Integrity     float64
	Reference     float64
}

// DefaultWeights returns the default component weights
func DefaultWeights() Weights {
	return Weights{
		Technical:     0.25,
		AudioFidelity: 0.25,
		Integrity:     0.15,
		Reference:     0.35,
	}
}

// Inputs are the recorded facts the score is computed from. Optional
// analyzer measurements are negative when not reported and score at
// their neutral value.
type Inputs struct {
	Path         string
	Codec        string
	BitrateKbps  int
	SampleRateHz int
	BitDepth     int

	HealthScore   int
	Defects       []string
	ClippingRatio float64 // [0,1], negative when unknown
	SilenceRatio  float64 // [0,1], negative when unknown

	DynamicRangeDB   float64 // negative when unknown
	SpectralCutoffHz float64 // zero when unknown
	NoiseFloorDB     float64 // zero when unknown

	ReferenceScore float64 // negative when no reference is known
}

// Result is the scored breakdown for one file
type Result struct {
	TechnicalScore     float64
	AudioFidelityScore float64
	IntegrityScore     float64
	ReferenceScore     float64
	FinalScore         float64
	Grade              string
	RecommendedAction  string
}

// Neutral reference score used when no reference version is known
const neutralReferenceScore = 70.0

// Penalty applied per defect when deriving the integrity component
var integrityDefectPenalty = 15.0

// Calculate computes the weighted quality score. All sub-scores are
// clamped to [0, 100]; the final score is rounded to one decimal.
func Calculate(in *Inputs, w Weights) *Result {
	technical := technicalScore(in)
	fidelity := fidelityScore(in)
	integrity := integrityScore(in)

	reference := in.ReferenceScore
	if reference < 0 {
		reference = neutralReferenceScore
	}
	reference = clamp(reference)

	final := technical*w.Technical +
		fidelity*w.AudioFidelity +
		integrity*w.Integrity +
		reference*w.Reference
	final = math.Round(final*10) / 10

	return &Result{
		TechnicalScore:     technical,
		AudioFidelityScore: fidelity,
		IntegrityScore:     integrity,
		ReferenceScore:     reference,
		FinalScore:         final,
		Grade:              Grade(final),
		RecommendedAction:  recommendAction(final, in),
	}
}

// technicalScore combines format, bitrate and sample rate
func technicalScore(in *Inputs) float64 {
	format := FormatScore(in.Path, in.Codec, in.BitrateKbps)
	bitrate := bitrateScore(in.Codec, in.BitrateKbps)
	frequency := sampleRateScore(in.SampleRateHz)

	return clamp(format*0.35 + bitrate*0.35 + frequency*0.30)
}

// FormatScore rates the container/codec tier. Lossy formats are further
// differentiated by bitrate.
func FormatScore(path, codec string, bitrateKbps int) float64 {
	format := strings.ToLower(codec)
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}

	switch format {
	case "flac":
		return 100
	case "wav", "pcm", "aiff":
		return 98
	case "alac", "m4a":
		return 95
	case "ape", "wavpack", "wv":
		return 95
	case "mp3":
		switch {
		case bitrateKbps >= 320:
			return 90
		case bitrateKbps >= 256:
			return 80
		case bitrateKbps >= 192:
			return 70
		case bitrateKbps >= 128:
			return 50
		default:
			return 35
		}
	case "ogg", "vorbis", "opus", "aac":
		switch {
		case bitrateKbps >= 256:
			return 85
		case bitrateKbps >= 192:
			return 75
		case bitrateKbps >= 128:
			return 60
		default:
			return 45
		}
	case "wma":
		return 60
	default:
		return 50
	}
}

func bitrateScore(codec string, bitrateKbps int) float64 {
	if isLossless(codec) {
		return 100
	}

	switch {
	case bitrateKbps >= 320:
		return 100
	case bitrateKbps >= 256:
		return 90
	case bitrateKbps >= 192:
		return 75
	case bitrateKbps >= 128:
		return 50
	case bitrateKbps > 0:
		return float64(bitrateKbps) / 128 * 50
	default:
		return 50 // unknown, neutral
	}
}

func sampleRateScore(sampleRateHz int) float64 {
	switch {
	case sampleRateHz >= 96000:
		return 100
	case sampleRateHz >= 48000:
		return 90
	case sampleRateHz >= 44100:
		return 85
	case sampleRateHz >= 32000:
		return 60
	case sampleRateHz > 0:
		return 40
	default:
		return 85 // unknown, assume CD quality
	}
}

// fidelityScore combines dynamic range, clipping, spectral cutoff and
// noise floor; each contributes its neutral value when unmeasured
func fidelityScore(in *Inputs) float64 {
	dynamicRange := 70.0
	if in.DynamicRangeDB > 0 {
		// 14 dB DR is excellent for mastered music
		dynamicRange = clamp(in.DynamicRangeDB / 14.0 * 100)
	}

	clipping := 100.0
	if in.ClippingRatio >= 0 {
		clipping = clamp(100 - in.ClippingRatio*2000) // 5% clipped => 0
	}

	spectral := 70.0
	if in.SpectralCutoffHz > 0 {
		// Full-range audio reaches ~20 kHz; low cutoffs reveal lossy
		// transcodes
		spectral = clamp(in.SpectralCutoffHz / 20000.0 * 100)
	}

	noise := 70.0
	if in.NoiseFloorDB < 0 {
		// -90 dB noise floor is clean; -30 dB is audible hiss
		noise = clamp((-in.NoiseFloorDB - 30) / 60 * 100)
	}

	return clamp(dynamicRange*0.35 + spectral*0.25 + clipping*0.25 + noise*0.15)
}

// integrityScore is the health score less defect penalties
func integrityScore(in *Inputs) float64 {
	health := clamp(float64(in.HealthScore))
	penalty := float64(len(in.Defects)) * integrityDefectPenalty
	defectPart := clamp(100 - penalty)

	return clamp(health*0.70 + defectPart*0.30)
}

func recommendAction(final float64, in *Inputs) string {
	switch {
	case in.HealthScore < 50:
		return "quarantine"
	case final < 60:
		return "replace"
	default:
		return "keep"
	}
}

// Grade maps a final score onto the fixed letter steps
func Grade(final float64) string {
	switch {
	case final >= 95:
		return "A+"
	case final >= 90:
		return "A"
	case final >= 85:
		return "A-"
	case final >= 80:
		return "B+"
	case final >= 75:
		return "B"
	case final >= 70:
		return "B-"
	case final >= 65:
		return "C+"
	case final >= 60:
		return "C"
	case final >= 55:
		return "C-"
	case final >= 50:
		return "D"
	default:
		return "F"
	}
}

func isLossless(codec string) bool {
	switch strings.ToLower(codec) {
	case "flac", "alac", "ape", "wavpack", "wv", "pcm", "wav", "aiff":
		return true
	}
	return false
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
