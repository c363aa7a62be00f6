package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidPolicy is returned for wait specs that cannot be parsed.
var ErrInvalidPolicy = errors.New("invalid wait policy")

// Kind identifies a wait policy variant.
type Kind int

const (
	// None never delays a request.
	None Kind = iota
	// Constant spaces requests by a fixed interval.
	Constant
	// Random spaces requests by an interval drawn uniformly from [Min, Max).
	Random
)

func (k Kind) String() string {
	switch k {
	case Constant:
		return "const"
	case Random:
		return "random"
	default:
		return "none"
	}
}

// Policy is the minimum spacing rule applied to one host.
type Policy struct {
	Kind Kind
	Min  time.Duration
	Max  time.Duration
}

// NoWait returns a policy that never delays.
func NoWait() Policy { return Policy{Kind: None} }

// ConstantWait returns a policy with a fixed spacing.
func ConstantWait(d time.Duration) Policy { return Policy{Kind: Constant, Min: d, Max: d} }

// RandomWait returns a policy drawing its spacing from [lo, hi).
func RandomWait(lo, hi time.Duration) Policy { return Policy{Kind: Random, Min: lo, Max: hi} }

// Interval returns the spacing to enforce for the next request. Random
// policies draw a fresh value on every call.
func (p Policy) Interval() time.Duration {
	switch p.Kind {
	case Constant:
		return p.Min
	case Random:
		span := p.Max - p.Min
		if span <= 0 {
			return p.Min
		}
		return p.Min + rand.N(span)
	default:
		return 0
	}
}

func (p Policy) String() string {
	switch p.Kind {
	case Constant:
		return fmt.Sprintf("const %s", p.Min)
	case Random:
		return fmt.Sprintf("random %s %s", p.Min, p.Max)
	default:
		return "none"
	}
}

// ParsePolicy parses a wait spec given as separate words:
//
//	"2"              constant 2s
//	"const 0.5"      constant 500ms
//	"random 1 2.5"   uniform in [1s, 2.5s)
//
// A single string containing spaces is split first, so both the CLI form
// (["random", "1", "3"]) and the waitlist form ("random 1 3") are accepted.
func ParsePolicy(args ...string) (Policy, error) {
	var words []string
	for _, arg := range args {
		words = append(words, strings.Fields(arg)...)
	}
	switch {
	case len(words) == 1:
		d, err := parseSeconds(words[0])
		if err != nil {
			return Policy{}, err
		}
		return ConstantWait(d), nil
	case len(words) == 2 && words[0] == "const":
		d, err := parseSeconds(words[1])
		if err != nil {
			return Policy{}, err
		}
		return ConstantWait(d), nil
	case len(words) == 3 && words[0] == "random":
		lo, err := parseSeconds(words[1])
		if err != nil {
			return Policy{}, err
		}
		hi, err := parseSeconds(words[2])
		if err != nil {
			return Policy{}, err
		}
		if hi <= lo {
			return Policy{}, fmt.Errorf("%w: random max %s must exceed min %s", ErrInvalidPolicy, hi, lo)
		}
		return RandomWait(lo, hi), nil
	default:
		return Policy{}, fmt.Errorf("%w: %q", ErrInvalidPolicy, strings.Join(words, " "))
	}
}

func parseSeconds(raw string) (time.Duration, error) {
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number of seconds", ErrInvalidPolicy, raw)
	}
	if secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidPolicy, raw)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
