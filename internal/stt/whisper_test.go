package stt

import "testing"

func TestConfidenceFrom(t *testing.T) {
	if got := confidenceFrom(nil, nil); got != 0 {
		t.Errorf("no segments: confidence = %v, want 0", got)
	}

	// Clean speech: token probabilities near 1, almost no no-speech
	// mass.
	clean := confidenceFrom([]float64{-0.1, -0.15}, []float64{0.01, 0.02})
	if clean < 0.8 || clean > 1 {
		t.Errorf("clean speech confidence = %v, want in [0.8, 1]", clean)
	}

	// Dead-air boilerplate: poor logprobs and high no-speech
	// probability must land near zero.
	noisy := confidenceFrom([]float64{-2.0, -2.5}, []float64{0.8, 0.9})
	if noisy > 0.1 {
		t.Errorf("noisy confidence = %v, want <= 0.1", noisy)
	}

	if clean <= noisy {
		t.Errorf("clean (%v) should outrank noisy (%v)", clean, noisy)
	}
}
