// Package segment cuts fixed-length footstep events out of a continuous
// vibration trace.
package segment

import (
	"math"

	"github.com/ChizhovVadim/vibeid/internal/domain"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
)

const (
	DefaultEventLength = 500
	DefaultSmooth      = 32
	DefaultThreshold   = 3.0
)

var ErrTraceTooShort = errors.New("trace shorter than one event")

type Config struct {
	EventLength int
	// Smooth is the moving-average window of the envelope.
	Smooth int
	// Threshold is k in mean + k*std of the envelope.
	Threshold float64
	// PreTrigger samples are kept before the onset. Negative means EventLength/5.
	PreTrigger int
	// Gap samples are skipped after every event.
	Gap int
}

func DefaultConfig() Config {
	return Config{
		EventLength: DefaultEventLength,
		Smooth:      DefaultSmooth,
		Threshold:   DefaultThreshold,
		PreTrigger:  -1,
	}
}

func (c Config) preTrigger() int {
	if c.PreTrigger < 0 {
		return c.EventLength / 5
	}
	return c.PreTrigger
}

func (c Config) validate() error {
	if c.EventLength <= 0 {
		return errors.Errorf("event length %v", c.EventLength)
	}
	if c.Smooth <= 0 {
		return errors.Errorf("smoothing window %v", c.Smooth)
	}
	if c.Gap < 0 {
		return errors.Errorf("gap %v", c.Gap)
	}
	if c.preTrigger() >= c.EventLength {
		return errors.Errorf("pre-trigger %v is not shorter than event length %v", c.preTrigger(), c.EventLength)
	}
	return nil
}

// Envelope returns the moving average of the rectified zero-mean trace.
// The window is centered and shrinks at the ends.
func Envelope(trace []float64, window int) ([]float64, error) {
	mean, err := stats.Mean(stats.Float64Data(trace))
	if err != nil {
		return nil, err
	}
	var prefix = make([]float64, len(trace)+1)
	for i, x := range trace {
		prefix[i+1] = prefix[i] + math.Abs(x-mean)
	}
	var half = window / 2
	var result = make([]float64, len(trace))
	for i := range trace {
		var lo = max(0, i-half)
		var hi = min(len(trace), i-half+window)
		result[i] = (prefix[hi] - prefix[lo]) / float64(hi-lo)
	}
	return result, nil
}

// Onsets returns the start indices of events detected in trace.
func Onsets(trace []float64, cfg Config) ([]int, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(trace) < cfg.EventLength {
		return nil, errors.Wrapf(ErrTraceTooShort, "%v samples, event length %v", len(trace), cfg.EventLength)
	}
	env, err := Envelope(trace, cfg.Smooth)
	if err != nil {
		return nil, err
	}
	mean, err := stats.Mean(stats.Float64Data(env))
	if err != nil {
		return nil, err
	}
	std, err := stats.StandardDeviation(stats.Float64Data(env))
	if err != nil {
		return nil, err
	}
	if std == 0 {
		return nil, nil
	}
	var threshold = mean + cfg.Threshold*std
	var pre = cfg.preTrigger()

	var result []int
	for i := 0; i < len(env); i++ {
		if env[i] <= threshold {
			continue
		}
		var start = i - pre
		if start < 0 {
			continue
		}
		if start+cfg.EventLength > len(trace) {
			break
		}
		result = append(result, start)
		i = start + cfg.EventLength + cfg.Gap - 1
	}
	return result, nil
}

// Segment cuts events out of trace and labels them.
func Segment(trace []float64, label string, cfg Config) ([]domain.Event, error) {
	onsets, err := Onsets(trace, cfg)
	if err != nil {
		return nil, err
	}
	var result = make([]domain.Event, 0, len(onsets))
	for _, start := range onsets {
		var signal = make([]float64, cfg.EventLength)
		copy(signal, trace[start:start+cfg.EventLength])
		result = append(result, domain.Event{Signal: signal, Label: label})
	}
	return result, nil
}
