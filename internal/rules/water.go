package rules

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/crop-advisory-service/internal/domain"
)

var defaultStageFactors = map[domain.GrowthStage]float64{
	domain.StageSeedling: 0.60,
	domain.StageYoung:    0.85,
	domain.StageMature:   1.10,
	domain.StageReady:    0.50,
}

var defaultSoilEfficiency = map[domain.SoilType]float64{
	domain.SoilLoam:   0.85,
	domain.SoilSilt:   0.80,
	domain.SoilClay:   0.75,
	domain.SoilSandy:  0.60,
	domain.SoilPeat:   0.90,
	domain.SoilChalky: 0.70,
}

const defaultUrgentDeficitFactor = 0.9

// StageFactor is the crop-water multiplier for a growth stage. A
// stage_factor_<stage> override takes precedence.
func StageFactor(p domain.AdjustedParameters, stage domain.GrowthStage) float64 {
	def, ok := defaultStageFactors[stage]
	if !ok {
		def = defaultStageFactors[domain.StageMature]
	}
	return p.Param("stage_factor_"+strings.ToLower(string(stage)), def)
}

// SoilEfficiency is the fraction of rain a soil retains. Unknown soils use
// the loam value. A soil_efficiency_<soil> override takes precedence.
func SoilEfficiency(p domain.AdjustedParameters, soil domain.SoilType) float64 {
	def, ok := defaultSoilEfficiency[soil]
	if !ok {
		soil = domain.SoilLoam
		def = defaultSoilEfficiency[domain.SoilLoam]
	}
	return p.Param("soil_efficiency_"+strings.ToLower(string(soil)), def)
}

// WaterBalance is the outcome of the water-deficit model. Deficit may be
// negative when effective rain exceeds demand.
type WaterBalance struct {
	PlantDemand   float64
	EffectiveRain float64
	Deficit       float64
}

// ComputeDeficit derives plant demand, effective rain and the deficit for a
// field from the aggregated forecast.
func ComputeDeficit(p domain.AdjustedParameters, stage domain.GrowthStage, agg domain.DailyAggregate, soil domain.SoilType) WaterBalance {
	demand := agg.TotalET0 * p.SeedCoefficient * StageFactor(p, stage)
	effective := agg.TotalRain * SoilEfficiency(p, soil)
	return WaterBalance{
		PlantDemand:   demand,
		EffectiveRain: effective,
		Deficit:       demand - effective,
	}
}

// ClassifyIrrigation picks the irrigation action for a field. The checks run
// in priority order and the first match wins. ok is false when the crop
// emits nothing for idle conditions.
func ClassifyIrrigation(p domain.AdjustedParameters, stage domain.GrowthStage, agg domain.DailyAggregate, wb WaterBalance) (typ domain.RecommendationType, ok bool) {
	allowed := p.AllowedWaterDeficit
	switch {
	case stage == domain.StageReady:
		return domain.ReadyToHarvest, true
	case agg.TotalRain > p.HeavyRainThreshold:
		return domain.DelayIrrigation, true
	case wb.Deficit >= allowed*p.Param("urgent_deficit_factor", defaultUrgentDeficitFactor):
		return domain.IrrigateNow, true
	case wb.Deficit >= allowed && agg.SoilMoisture < p.MinSoilMoisture:
		return domain.IrrigateSoon, true
	case p.Param("monitor_when_idle", 1) == 0:
		return "", false
	default:
		return domain.MonitorConditions, true
	}
}

var stopAdvice = map[domain.CropType]string{
	domain.CropWheat:       "STOP Irrigation. Let the grain dry down before harvest.",
	domain.CropBarley:      "STOP Irrigation. Let the grain dry down before harvest.",
	domain.CropCorn:        "STOP Irrigation. Let the cobs dry in the field.",
	domain.CropPumpkin:     "STOP Irrigation. Firm up the rinds before harvest.",
	domain.CropBlackGrapes: "STOP Irrigation. Concentrate sugars before picking.",
	domain.CropWhiteGrapes: "STOP Irrigation. Concentrate sugars before picking.",
}

func irrigationAdvice(typ domain.RecommendationType, ct domain.CropType) string {
	switch typ {
	case domain.ReadyToHarvest:
		if a, ok := stopAdvice[ct]; ok {
			return a
		}
		return "STOP Irrigation. Crop is ready for harvest."
	case domain.DelayIrrigation:
		return "DELAY_IRRIGATION_RAIN_EXPECTED"
	case domain.IrrigateNow:
		return "START_IRRIGATION_NOW"
	case domain.IrrigateSoon:
		return "SCHEDULE_IRRIGATION_WITHIN_24H"
	default:
		return "MONITOR_SOIL_MOISTURE"
	}
}

func irrigationReason(typ domain.RecommendationType, p domain.AdjustedParameters, agg domain.DailyAggregate, wb WaterBalance) string {
	switch typ {
	case domain.ReadyToHarvest:
		return fmt.Sprintf("%s has reached harvest readiness.", displayName(p))
	case domain.DelayIrrigation:
		return fmt.Sprintf("%.1fmm of rain expected, above the %.1fmm heavy rain threshold.", agg.TotalRain, p.HeavyRainThreshold)
	default:
		return fmt.Sprintf("Plant demand %.1fmm, effective rain %.1fmm, deficit %.1fmm (allowed %.1fmm), soil moisture %.2f.",
			wb.PlantDemand, wb.EffectiveRain, wb.Deficit, p.AllowedWaterDeficit, agg.SoilMoisture)
	}
}
