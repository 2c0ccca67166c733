// Package rules evaluates crop rules and the water-deficit model against a
// weather snapshot and produces candidate recommendations.
package rules

import (
	"fmt"

	"github.com/couchcryptid/crop-advisory-service/internal/domain"
)

// Op compares an observed value with a limit.
type Op int

const (
	Below   Op = iota // <
	AtMost            // <=
	Above             // >
	AtLeast           // >=
)

func (o Op) String() string {
	switch o {
	case Below:
		return "<"
	case AtMost:
		return "<="
	case Above:
		return ">"
	case AtLeast:
		return ">="
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

func (o Op) holds(value, limit float64) bool {
	switch o {
	case Below:
		return value < limit
	case AtMost:
		return value <= limit
	case Above:
		return value > limit
	case AtLeast:
		return value >= limit
	default:
		return false
	}
}

// Observed values a condition can test.
const (
	ObsTemperature  = "temperature"
	ObsRain         = "rain"
	ObsWindSpeed    = "wind_speed"
	ObsTempMax      = "temp_max"
	ObsTempMin      = "temp_min"
	ObsRainSum      = "rain_sum"
	ObsWindSpeedMax = "wind_speed_max"
)

var observers = map[string]func(domain.Observation) float64{
	ObsTemperature:  func(o domain.Observation) float64 { return o.Temperature },
	ObsRain:         func(o domain.Observation) float64 { return o.Rain },
	ObsWindSpeed:    func(o domain.Observation) float64 { return o.WindSpeed },
	ObsTempMax:      func(o domain.Observation) float64 { return o.TempMax },
	ObsTempMin:      func(o domain.Observation) float64 { return o.TempMin },
	ObsRainSum:      func(o domain.Observation) float64 { return o.RainSum },
	ObsWindSpeedMax: func(o domain.Observation) float64 { return o.WindSpeedMax },
}

// Limit derives a threshold from the adjusted parameters.
type Limit func(p domain.AdjustedParameters) float64

// Condition is a single comparison of an observed value against a limit.
type Condition struct {
	Observed string
	Op       Op
	Limit    Limit
}

// Holds reports whether the condition is satisfied. Unknown observed
// names never hold.
func (c Condition) Holds(p domain.AdjustedParameters, o domain.Observation) bool {
	read, ok := observers[c.Observed]
	if !ok || c.Limit == nil {
		return false
	}
	return c.Op.holds(read(o), c.Limit(p))
}

// Facts is what a rule sees when it fires.
type Facts struct {
	Params domain.AdjustedParameters
	Field  domain.FieldState
	Obs    domain.Observation
}

// Rule fires a recommendation when every condition holds for a field of
// the rule's crop at the rule's granularity.
type Rule struct {
	Name        string
	Crop        domain.CropType
	Granularity domain.Granularity
	Type        domain.RecommendationType
	When        []Condition
	Advice      string
	Reason      func(f Facts) string
	Metrics     []string
}

// Matches reports whether all conditions hold.
func (r Rule) Matches(p domain.AdjustedParameters, o domain.Observation) bool {
	if len(r.When) == 0 {
		return false
	}
	for _, c := range r.When {
		if !c.Holds(p, o) {
			return false
		}
	}
	return true
}

func (r Rule) metrics(o domain.Observation) map[string]float64 {
	m := make(map[string]float64, len(r.Metrics))
	for _, name := range r.Metrics {
		if read, ok := observers[name]; ok {
			m[metricName(name)] = read(o)
		}
	}
	return m
}

// metricName maps observed values onto the shared recommendation metric
// names so the dedup cache can compare daily and current temperatures alike.
func metricName(observed string) string {
	switch observed {
	case ObsTempMax, ObsTempMin:
		return domain.MetricTemperature
	case ObsRainSum:
		return domain.MetricRain
	case ObsWindSpeedMax:
		return domain.MetricWindSpeed
	default:
		return observed
	}
}

func fixed(v float64) Limit {
	return func(domain.AdjustedParameters) float64 { return v }
}

func param(name string, def float64) Limit {
	return func(p domain.AdjustedParameters) float64 { return p.Param(name, def) }
}

func sum(a, b Limit) Limit {
	return func(p domain.AdjustedParameters) float64 { return a(p) + b(p) }
}

func product(a, b Limit) Limit {
	return func(p domain.AdjustedParameters) float64 { return a(p) * b(p) }
}
