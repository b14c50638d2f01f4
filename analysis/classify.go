// Package analysis decodes temperature samples and classifies them into a
// health-risk category.
package analysis

import "math"

// MaxScore is the highest risk score a temperature can get.
const MaxScore = 3

// Liferate is the bucketed risk classification. The numeric values are the
// codes reported in logs and exported metrics.
type Liferate int

const (
	Undefined    Liferate = -1
	Normal       Liferate = 0
	Critical     Liferate = 1
	VeryCritical Liferate = 2
)

func (l Liferate) String() string {
	switch l {
	case Normal:
		return "normal"
	case Critical:
		return "critical"
	case VeryCritical:
		return "very_critical"
	default:
		return "undefined"
	}
}

// Score rates a temperature from 0 (healthy) to 3. Rules are evaluated in
// order and the first match wins, so 35 < t <= 36 scores 1 while
// 36 < t <= 38 scores 0. A value matching no rule (NaN) scores -1.
func Score(t float64) int {
	switch {
	case t > 36 && t <= 38:
		return 0
	case t > 35 && t <= 39:
		return 1
	case t > 39:
		return 2
	case t <= 35:
		return 3
	default:
		return -1
	}
}

// Classify buckets a score ratio in [0, 1].
func Classify(ratio float64) Liferate {
	switch {
	case math.IsNaN(ratio) || ratio < 0 || ratio > 1:
		return Undefined
	case ratio < 0.3:
		return Normal
	case ratio < 0.7:
		return Critical
	default:
		return VeryCritical
	}
}

// Sample is the latest telemetry value. Set is false until a telemetry
// packet has been accepted.
type Sample struct {
	Value float64
	Set   bool
}

// Result is one evaluation of a Sample.
type Result struct {
	Temperature float64
	Valid       bool
	Score       int
	Ratio       float64
	Liferate    Liferate
}

// Evaluate scores and classifies s. A sample that was never set yields
// Undefined.
func Evaluate(s Sample) Result {
	if !s.Set {
		return Result{Score: -1, Ratio: math.NaN(), Liferate: Undefined}
	}
	score := Score(s.Value)
	ratio := float64(score) / MaxScore
	return Result{
		Temperature: s.Value,
		Valid:       true,
		Score:       score,
		Ratio:       ratio,
		Liferate:    Classify(ratio),
	}
}
