// Package strategy holds the closed set of long-only position rules.
package strategy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sawpanic/cryptolens/internal/domain/indicators"
)

// State is the position held on a date.
type State int

const (
	Flat State = iota
	Long
)

func (s State) String() string {
	if s == Long {
		return "LONG"
	}
	return "FLAT"
}

// Exposure is the fraction of capital invested: 0 or 1.
func (s State) Exposure() float64 {
	if s == Long {
		return 1
	}
	return 0
}

// PositionSeries is one State per frame row. Entry t depends only on rows 0..t.
type PositionSeries []State

// Strategy turns an indicator frame into positions.
type Strategy interface {
	Kind() Kind
	Name() string
	Params() map[string]float64
	Positions(frame indicators.Frame) PositionSeries
}

// Kind enumerates the strategy variants.
type Kind int

const (
	CompositeKind Kind = iota
	RSIKind
	GoldenCrossKind
	FearGreedKind
)

// ErrUnknownStrategy is returned by Parse.
var ErrUnknownStrategy = errors.New("unknown strategy")

var kindIDs = [...]string{
	CompositeKind:   "composite",
	RSIKind:         "rsi",
	GoldenCrossKind: "golden_cross",
	FearGreedKind:   "fear_greed",
}

// Kinds lists every variant in catalog order.
func Kinds() []Kind {
	return []Kind{CompositeKind, RSIKind, GoldenCrossKind, FearGreedKind}
}

// ID is the stable external identifier.
func (k Kind) ID() string {
	if k < 0 || int(k) >= len(kindIDs) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindIDs[k]
}

func (k Kind) String() string { return k.ID() }

// Parse resolves an external identifier.
func Parse(id string) (Kind, error) {
	norm := strings.ToLower(strings.TrimSpace(id))
	for k, s := range kindIDs {
		if s == norm {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("%w %q, choose from %s", ErrUnknownStrategy, id, strings.Join(IDs(), ", "))
}

// IDs lists the external identifiers.
func IDs() []string {
	out := make([]string, len(kindIDs))
	copy(out, kindIDs[:])
	return out
}

// New returns the variant for k with its default parameters.
func New(k Kind) Strategy {
	switch k {
	case RSIKind:
		return NewRSIMeanReversion()
	case GoldenCrossKind:
		return NewGoldenCross()
	case FearGreedKind:
		return NewSentimentContrarian()
	default:
		return NewCompositeThreshold()
	}
}

// hysteresis folds enter/exit conditions into positions. A condition returning
// ok=false (missing input) leaves the state unchanged.
func hysteresis(n int, enter, exit func(i int) (bool, bool)) PositionSeries {
	out := make(PositionSeries, n)
	state := Flat
	for i := 0; i < n; i++ {
		switch state {
		case Flat:
			if fire, ok := enter(i); ok && fire {
				state = Long
			}
		case Long:
			if fire, ok := exit(i); ok && fire {
				state = Flat
			}
		}
		out[i] = state
	}
	return out
}
