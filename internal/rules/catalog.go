package rules

import (
	"fmt"

	"github.com/couchcryptid/crop-advisory-service/internal/domain"
)

func minTemperature(p domain.AdjustedParameters) float64        { return p.MinTemperature }
func heatStressTemperature(p domain.AdjustedParameters) float64 { return p.HeatStressTemperature }
func heavyRainThreshold(p domain.AdjustedParameters) float64    { return p.HeavyRainThreshold }
func diseaseRiskMaxTemp(p domain.AdjustedParameters) float64    { return p.DiseaseRiskMaxTemp }
func maxWindTolerance(p domain.AdjustedParameters) float64      { return p.MaxWindTolerance }

// diseaseRain is the rain threshold for fungal disease, scaled by the
// disease_rain_factor override.
var diseaseRain = product(
	func(p domain.AdjustedParameters) float64 { return p.DiseaseRainThreshold },
	param("disease_rain_factor", 1),
)

// diseaseMinTemp is the lower bound of the disease temperature band, shifted
// by the disease_temp_offset override.
var diseaseMinTemp = sum(
	func(p domain.AdjustedParameters) float64 { return p.DiseaseRiskMinTemp },
	param("disease_temp_offset", 0),
)

var frostAdvice = map[domain.CropType]string{
	domain.CropWhiteGrapes: "IGNITE_FROST_CANDLES_OR_IRRIGATE",
	domain.CropBlackGrapes: "IGNITE_FROST_CANDLES_OR_IRRIGATE",
	domain.CropWheat:       "INSPECT_FIELDS_FOR_FROST_DAMAGE",
	domain.CropBarley:      "INSPECT_FIELDS_FOR_FROST_DAMAGE",
	domain.CropPumpkin:     "COVER_WITH_FLEECE_IMMEDIATELY",
	domain.CropCorn:        "CHECK_GROWING_POINT_RECOVERY",
}

var heatAdvice = map[domain.CropType]string{
	domain.CropWhiteGrapes: "MANAGE_CANOPY_AND_IRRIGATE",
	domain.CropBlackGrapes: "MANAGE_CANOPY_SHADE",
	domain.CropWheat:       "START_MOBILE_IRRIGATION",
	domain.CropBarley:      "START_MOBILE_IRRIGATION",
	domain.CropPumpkin:     "IRRIGATE_TO_PREVENT_FLOWER_DROP",
	domain.CropCorn:        "IRRIGATE_TO_SAVE_POLLINATION",
}

// DefaultRules returns the built-in rule catalog.
func DefaultRules() []Rule {
	rules := make([]Rule, 0, 2*len(domain.CropTypes)+12)
	for _, ct := range domain.CropTypes {
		rules = append(rules, frostRule(ct), heatRule(ct))
	}
	rules = append(rules, whiteGrapeRules()...)
	rules = append(rules, wheatRules()...)
	rules = append(rules, pumpkinRules()...)
	rules = append(rules, cornRules()...)
	rules = append(rules, blackGrapeRules()...)
	rules = append(rules, barleyRules()...)
	return rules
}

func frostRule(ct domain.CropType) Rule {
	return Rule{
		Name:        "frost:" + string(ct),
		Crop:        ct,
		Granularity: domain.GranularityCurrent,
		Type:        domain.FrostAlert,
		When:        []Condition{{Observed: ObsTemperature, Op: Below, Limit: minTemperature}},
		Advice:      frostAdvice[ct],
		Reason: func(f Facts) string {
			return fmt.Sprintf("Temperature %.1f°C is below the %.1f°C minimum for %s.",
				f.Obs.Temperature, f.Params.MinTemperature, displayName(f.Params))
		},
		Metrics: []string{ObsTemperature, ObsRain, ObsWindSpeed},
	}
}

func heatRule(ct domain.CropType) Rule {
	return Rule{
		Name:        "heat:" + string(ct),
		Crop:        ct,
		Granularity: domain.GranularityCurrent,
		Type:        domain.HeatAlert,
		When:        []Condition{{Observed: ObsTemperature, Op: Above, Limit: heatStressTemperature}},
		Advice:      heatAdvice[ct],
		Reason: func(f Facts) string {
			return fmt.Sprintf("Temperature %.1f°C exceeds the %.1f°C heat stress limit for %s.",
				f.Obs.Temperature, f.Params.HeatStressTemperature, displayName(f.Params))
		},
		Metrics: []string{ObsTemperature, ObsRain, ObsWindSpeed},
	}
}

func daily(ct domain.CropType, name string, typ domain.RecommendationType, advice string, reason func(Facts) string, metrics []string, when ...Condition) Rule {
	return Rule{
		Name:        name + ":" + string(ct),
		Crop:        ct,
		Granularity: domain.GranularityDaily,
		Type:        typ,
		When:        when,
		Advice:      advice,
		Reason:      reason,
		Metrics:     metrics,
	}
}

func dayReason(format string, args func(Facts) []any) func(Facts) string {
	return func(f Facts) string {
		return fmt.Sprintf(format, args(f)...) + " " + forecastDay(f.Obs)
	}
}

func whiteGrapeRules() []Rule {
	ct := domain.CropWhiteGrapes
	return []Rule{
		daily(ct, "downy-mildew", domain.DiseasePrevention, "APPLY_PREVENTIVE_FUNGICIDE",
			dayReason("Downy mildew risk: %.1fmm rain with night temperatures of %.1f°C.", func(f Facts) []any {
				return []any{f.Obs.RainSum, f.Obs.TempMin}
			}),
			[]string{ObsTempMin, ObsRainSum},
			Condition{Observed: ObsRainSum, Op: Above, Limit: diseaseRain},
			Condition{Observed: ObsTempMin, Op: Above, Limit: diseaseMinTemp},
			Condition{Observed: ObsTempMin, Op: AtMost, Limit: diseaseRiskMaxTemp},
		),
		daily(ct, "berry-moth", domain.PestRisk, "SET_PHEROMONE_TRAPS",
			dayReason("Grape berry moth risk: dry (%.1fmm) and warm nights (%.1f°C).", func(f Facts) []any {
				return []any{f.Obs.RainSum, f.Obs.TempMin}
			}),
			[]string{ObsTempMin, ObsRainSum},
			Condition{Observed: ObsRainSum, Op: Below, Limit: param("pest_dry_rain_limit", 2)},
			Condition{Observed: ObsTempMin, Op: Above, Limit: sum(param("pest_temp_limit", 14), param("pest_temp_offset", 0))},
		),
	}
}

func wheatRules() []Rule {
	ct := domain.CropWheat
	return []Rule{
		daily(ct, "fusarium", domain.DiseasePrevention, "APPLY_FUNGICIDE_AT_FLOWERING",
			dayReason("Fusarium head blight risk: %.1fmm rain at %.1f°C.", func(f Facts) []any {
				return []any{f.Obs.RainSum, f.Obs.TempMax}
			}),
			[]string{ObsTempMax, ObsRainSum},
			Condition{Observed: ObsRainSum, Op: Above, Limit: diseaseRain},
			Condition{Observed: ObsTempMax, Op: AtLeast, Limit: diseaseMinTemp},
			Condition{Observed: ObsTempMax, Op: AtMost, Limit: diseaseRiskMaxTemp},
		),
		daily(ct, "nitrogen-leaching", domain.NutrientCheck, "CHECK_NITROGEN_LEVELS",
			dayReason("Heavy rain (%.1fmm) may leach nitrogen from the root zone.", func(f Facts) []any {
				return []any{f.Obs.RainSum}
			}),
			[]string{ObsRainSum},
			Condition{Observed: ObsRainSum, Op: Above, Limit: heavyRainThreshold},
		),
	}
}

func pumpkinRules() []Rule {
	ct := domain.CropPumpkin
	return []Rule{
		daily(ct, "fruit-rot", domain.DiseasePrevention, "IMPROVE_DRAINAGE_AND_LIFT_FRUIT",
			dayReason("Heavy rain (%.1fmm) raises fruit rot risk.", func(f Facts) []any {
				return []any{f.Obs.RainSum}
			}),
			[]string{ObsRainSum},
			Condition{Observed: ObsRainSum, Op: Above, Limit: heavyRainThreshold},
		),
		daily(ct, "powdery-mildew", domain.PestRisk, "APPLY_SULFUR_OR_BICARBONATE",
			dayReason("Powdery mildew risk: dry (%.1fmm) and warm (%.1f°C).", func(f Facts) []any {
				return []any{f.Obs.RainSum, f.Obs.TempMax}
			}),
			[]string{ObsTempMax, ObsRainSum},
			Condition{Observed: ObsRainSum, Op: Below, Limit: param("pest_dry_rain_limit", 2)},
			Condition{Observed: ObsTempMax, Op: Above, Limit: param("pest_temp_limit", 10)},
			Condition{Observed: ObsTempMax, Op: Below, Limit: diseaseRiskMaxTemp},
		),
	}
}

func cornRules() []Rule {
	ct := domain.CropCorn
	return []Rule{
		daily(ct, "leaf-blight", domain.DiseasePrevention, "SCOUT_FOR_LEAF_LESIONS",
			dayReason("Northern leaf blight risk: %.1fmm rain with nights at %.1f°C.", func(f Facts) []any {
				return []any{f.Obs.RainSum, f.Obs.TempMin}
			}),
			[]string{ObsTempMin, ObsRainSum},
			Condition{Observed: ObsRainSum, Op: Above, Limit: diseaseRain},
			Condition{Observed: ObsTempMin, Op: Above, Limit: diseaseMinTemp},
			Condition{Observed: ObsTempMin, Op: AtMost, Limit: diseaseRiskMaxTemp},
		),
		daily(ct, "wind-damage", domain.StormAlert, "CHECK_FOR_STALK_LODGING",
			dayReason("Wind gusts of %.1f km/h exceed the crop's tolerance.", func(f Facts) []any {
				return []any{f.Obs.WindSpeedMax}
			}),
			[]string{ObsWindSpeedMax},
			Condition{Observed: ObsWindSpeedMax, Op: Above, Limit: maxWindTolerance},
		),
	}
}

func blackGrapeRules() []Rule {
	ct := domain.CropBlackGrapes
	return []Rule{
		daily(ct, "botrytis", domain.DiseasePrevention, "THIN_LEAVES_AND_APPLY_BOTRYTICIDE",
			dayReason("Botrytis bunch rot risk: %.1fmm rain at %.1f°C.", func(f Facts) []any {
				return []any{f.Obs.RainSum, f.Obs.TempMax}
			}),
			[]string{ObsTempMax, ObsRainSum},
			Condition{Observed: ObsRainSum, Op: Above, Limit: diseaseRain},
			Condition{Observed: ObsTempMax, Op: Above, Limit: diseaseMinTemp},
			Condition{Observed: ObsTempMax, Op: AtMost, Limit: diseaseRiskMaxTemp},
		),
		daily(ct, "sun-scald", domain.HeatStressPrevention, "KEEP_LEAF_COVER_ON_WEST_SIDE",
			dayReason("Sun scald risk: maximum of %.1f°C.", func(f Facts) []any {
				return []any{f.Obs.TempMax}
			}),
			[]string{ObsTempMax},
			Condition{Observed: ObsTempMax, Op: Above, Limit: heatStressTemperature},
		),
	}
}

func barleyRules() []Rule {
	ct := domain.CropBarley
	return []Rule{
		daily(ct, "net-blotch", domain.DiseasePrevention, "INSPECT_LOWER_LEAVES_FOR_NET_BLOTCH",
			dayReason("Net blotch risk: wet (%.1fmm) and cool (%.1f°C).", func(f Facts) []any {
				return []any{f.Obs.RainSum, f.Obs.TempMax}
			}),
			[]string{ObsTempMax, ObsRainSum},
			Condition{Observed: ObsRainSum, Op: Above, Limit: diseaseRain},
			Condition{Observed: ObsTempMax, Op: Above, Limit: diseaseMinTemp},
			Condition{Observed: ObsTempMax, Op: AtMost, Limit: param("net_blotch_max_temp", 20)},
		),
		daily(ct, "lodging", domain.StormAlert, "PLAN_EARLY_HARVEST_OR_SUPPORT",
			dayReason("Lodging risk: %.1fmm rain with %.1f km/h wind.", func(f Facts) []any {
				return []any{f.Obs.RainSum, f.Obs.WindSpeedMax}
			}),
			[]string{ObsRainSum, ObsWindSpeedMax},
			Condition{Observed: ObsRainSum, Op: Above, Limit: param("lodging_rain_limit", 5)},
			Condition{Observed: ObsWindSpeedMax, Op: Above, Limit: product(maxWindTolerance, param("lodging_wind_factor", 0.8))},
		),
	}
}

func displayName(p domain.AdjustedParameters) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return string(p.CropType)
}

func forecastDay(o domain.Observation) string {
	if o.Time.IsZero() {
		return "(forecast)"
	}
	return "(forecast for " + o.Time.Format("2006-01-02") + ")"
}
