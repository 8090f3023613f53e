package vad

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const frameSamples = 160 // 20ms at 8kHz

func loudFrame() []byte {
	f := make([]byte, frameSamples)
	for i := range f {
		s := int16(8000)
		if i%2 == 1 {
			s = -8000
		}
		f[i] = EncodeULaw(s)
	}
	return f
}

func silentFrame() []byte {
	f := make([]byte, frameSamples)
	for i := range f {
		f[i] = 0xFF
	}
	return f
}

func testConfig() Config {
	return Config{
		Threshold:      0.03,
		SilenceTimeout: 1500 * time.Millisecond,
		MinPhrase:      500 * time.Millisecond,
		MaxFrames:      1000,
	}
}

func TestDetectorIgnoresSilence(t *testing.T) {
	d := NewDetector(testConfig(), zerolog.Nop())
	for i := 0; i < 200; i++ {
		if u := d.Push(silentFrame()); u != nil {
			t.Fatal("utterance emitted from pure silence")
		}
	}
	if u := d.Flush(); u != nil {
		t.Fatal("flush emitted from pure silence")
	}
}

func TestDetectorEmitsAfterSilenceTimeout(t *testing.T) {
	d := NewDetector(testConfig(), zerolog.Nop())

	// ── 1s of speech ──
	for i := 0; i < 50; i++ {
		if u := d.Push(loudFrame()); u != nil {
			t.Fatal("utterance emitted mid-phrase")
		}
	}

	// ── trailing silence, emits at 1500ms ──
	var got *Utterance
	for i := 0; i < 80; i++ {
		if u := d.Push(silentFrame()); u != nil {
			got = u
			break
		}
	}
	if got == nil {
		t.Fatal("no utterance after silence timeout")
	}

	// 50 speech frames + 75 silence frames, 20ms each.
	want := 2500 * time.Millisecond
	if got.Duration != want {
		t.Errorf("duration = %v, want %v", got.Duration, want)
	}
	if got.Frames != 125 {
		t.Errorf("frames = %d, want 125", got.Frames)
	}
	if len(got.WAV) != 44+125*frameSamples*2 {
		t.Errorf("wav length = %d", len(got.WAV))
	}
}

func TestDetectorDiscardsShortPhrase(t *testing.T) {
	d := NewDetector(testConfig(), zerolog.Nop())

	// A 200ms noise blip, then silence until the gate closes. The
	// buffered trailing silence must not lift the blip over the 500ms
	// minimum.
	for i := 0; i < 10; i++ {
		if u := d.Push(loudFrame()); u != nil {
			t.Fatal("utterance emitted mid-blip")
		}
	}
	for i := 0; i < 80; i++ {
		if u := d.Push(silentFrame()); u != nil {
			t.Fatalf("noise blip emitted as %v utterance", u.Duration)
		}
	}
	if u := d.Flush(); u != nil {
		t.Fatalf("flush emitted discarded blip as %v utterance", u.Duration)
	}

	// The gate resets and a later, long-enough phrase still emits.
	for i := 0; i < 50; i++ {
		d.Push(loudFrame())
	}
	emitted := false
	for i := 0; i < 80; i++ {
		if u := d.Push(silentFrame()); u != nil {
			emitted = true
			break
		}
	}
	if !emitted {
		t.Fatal("long phrase after reset not emitted")
	}
}

func TestDetectorBoundsBuffer(t *testing.T) {
	cfg := testConfig()
	cfg.MaxFrames = 100
	d := NewDetector(cfg, zerolog.Nop())

	for i := 0; i < 500; i++ {
		d.Push(loudFrame())
	}
	u := d.Flush()
	if u == nil {
		t.Fatal("flush returned nil")
	}
	if u.Frames != 100 {
		t.Errorf("frames = %d, want 100 (oldest evicted)", u.Frames)
	}
}

func TestDetectorFlushMidPhrase(t *testing.T) {
	d := NewDetector(testConfig(), zerolog.Nop())
	for i := 0; i < 50; i++ {
		d.Push(loudFrame())
	}
	u := d.Flush()
	if u == nil {
		t.Fatal("flush returned nil mid-phrase")
	}
	if u.Duration != 1000*time.Millisecond {
		t.Errorf("duration = %v, want 1s", u.Duration)
	}
	if d.Flush() != nil {
		t.Error("second flush should return nil")
	}
}
