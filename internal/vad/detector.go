// Package vad segments a μ-law audio stream into utterances using an
// RMS energy gate. One Detector serves one media stream and is not safe
// for concurrent use; the stream reader owns it.
package vad

import (
	"math"
	"time"

	"github.com/rs/zerolog"
)

// Config tunes the energy gate.
type Config struct {
	// Threshold is the normalized RMS level (0..1) above which a frame
	// counts as speech.
	Threshold float64
	// SilenceTimeout is how much trailing silence closes an utterance.
	SilenceTimeout time.Duration
	// MinPhrase is the shortest utterance worth transcribing; anything
	// shorter is discarded as noise.
	MinPhrase time.Duration
	// MaxFrames bounds the per-utterance buffer. When exceeded the
	// oldest frames are dropped.
	MaxFrames int
}

// Utterance is one detected phrase, already wrapped as WAV for the STT
// vendor.
type Utterance struct {
	WAV      []byte
	Duration time.Duration
	Frames   int
}

// Detector is the per-stream energy gate state machine.
type Detector struct {
	cfg Config
	log zerolog.Logger

	inPhrase       bool
	frames         [][]int16
	phraseSamples  int
	silenceSamples int
	dropped        int
}

func NewDetector(cfg Config, log zerolog.Logger) *Detector {
	if cfg.MaxFrames <= 0 {
		cfg.MaxFrames = 1000
	}
	return &Detector{cfg: cfg, log: log}
}

// Push feeds one μ-law frame into the gate. It returns a non-nil
// Utterance when trailing silence closes a phrase that meets the
// minimum duration; short phrases are dropped silently.
func (d *Detector) Push(frame []byte) *Utterance {
	if len(frame) == 0 {
		return nil
	}
	pcm := DecodeULawFrame(frame)
	active := rms(pcm) >= d.cfg.Threshold

	if !d.inPhrase {
		if !active {
			return nil
		}
		d.inPhrase = true
	}

	d.buffer(pcm)
	if active {
		d.silenceSamples = 0
		return nil
	}

	d.silenceSamples += len(pcm)
	if samplesToDuration(d.silenceSamples) < d.cfg.SilenceTimeout {
		return nil
	}
	return d.close()
}

// Flush closes any phrase in progress, for stream end.
func (d *Detector) Flush() *Utterance {
	if !d.inPhrase {
		return nil
	}
	return d.close()
}

func (d *Detector) close() *Utterance {
	frames := d.frames
	total := d.phraseSamples
	speech := total - d.silenceSamples
	dropped := d.dropped

	d.inPhrase = false
	d.frames = nil
	d.phraseSamples = 0
	d.silenceSamples = 0
	d.dropped = 0

	// The buffer holds the trailing silence that closed the gate; only
	// the speech portion counts against the minimum.
	if samplesToDuration(speech) < d.cfg.MinPhrase {
		return nil
	}
	dur := samplesToDuration(total)
	if dropped > 0 {
		d.log.Warn().Int("dropped_frames", dropped).Msg("utterance buffer overflowed, oldest audio lost")
	}

	samples := make([]int16, 0, total)
	for _, f := range frames {
		samples = append(samples, f...)
	}
	return &Utterance{
		WAV:      WrapWAV(samples),
		Duration: dur,
		Frames:   len(frames),
	}
}

func (d *Detector) buffer(pcm []int16) {
	if len(d.frames) >= d.cfg.MaxFrames {
		d.phraseSamples -= len(d.frames[0])
		d.frames = d.frames[1:]
		d.dropped++
	}
	d.frames = append(d.frames, pcm)
	d.phraseSamples += len(pcm)
}

func samplesToDuration(n int) time.Duration {
	return time.Duration(n) * time.Second / sampleRate
}

// rms returns the normalized root-mean-square level of a PCM frame.
func rms(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}
	var sum float64
	for _, s := range pcm {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(pcm)))
}
