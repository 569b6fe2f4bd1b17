package types

// Grade is a closed ordinal classification of a measurement. Bufferbloat
// uses the A/B/C scale; jitter, DNS, and MTU use Excellent/Good/Poor; route
// analysis reuses the hop tag labels as path grades.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"

	GradeExcellent Grade = "Excellent"
	GradeGood      Grade = "Good"
	GradePoor      Grade = "Poor"
)

// Statistic summarizes a numeric series. It is recomputed fresh per
// aggregation and never mutated. A Statistic is only ever computed over a
// non-empty series; kinds with no successful samples are reported as
// "no data" instead.
type Statistic struct {
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
	Avg   float64 `json:"avg" yaml:"avg"`
	P50   float64 `json:"p50" yaml:"p50"`
	P95   float64 `json:"p95" yaml:"p95"`
	Count int     `json:"count" yaml:"count"`
}
