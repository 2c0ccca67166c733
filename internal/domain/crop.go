package domain

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"
)

// ErrUnknownCrop is returned when a crop name has no configured profile.
var ErrUnknownCrop = errors.New("unknown crop type")

// ErrFieldChanged is returned when a field was harvested, replanted or removed
// after it was read, so an update computed from the old state was not applied.
var ErrFieldChanged = errors.New("field changed since it was read")

// CropType identifies a crop family.
type CropType string

const (
	CropWheat       CropType = "WHEAT"
	CropCorn        CropType = "CORN"
	CropBarley      CropType = "BARLEY"
	CropPumpkin     CropType = "PUMPKIN"
	CropBlackGrapes CropType = "BLACK_GRAPES"
	CropWhiteGrapes CropType = "WHITE_GRAPES"
)

// CropTypes lists every supported crop in a stable order.
var CropTypes = []CropType{CropWheat, CropCorn, CropBarley, CropPumpkin, CropBlackGrapes, CropWhiteGrapes}

// ParseCropType resolves a crop name case-insensitively.
func ParseCropType(s string) (CropType, error) {
	name := CropType(strings.ToUpper(strings.TrimSpace(s)))
	for _, c := range CropTypes {
		if c == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCrop, s)
}

// GrowthStage is the phenological stage of a planted field.
type GrowthStage string

const (
	StageSeedling GrowthStage = "SEEDLING"
	StageYoung    GrowthStage = "YOUNG"
	StageMature   GrowthStage = "MATURE"
	StageReady    GrowthStage = "READY"
)

// ParseGrowthStage maps a stage name or its ordinal ("0".."3") to a GrowthStage.
// Empty input is YOUNG and anything unrecognised is MATURE.
func ParseGrowthStage(s string) GrowthStage {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return StageYoung
	case "0", string(StageSeedling):
		return StageSeedling
	case "1", string(StageYoung):
		return StageYoung
	case "2", string(StageMature):
		return StageMature
	case "3", string(StageReady):
		return StageReady
	default:
		return StageMature
	}
}

// Rank orders stages from SEEDLING (0) to READY (3). Unknown stages rank -1.
func (g GrowthStage) Rank() int {
	switch g {
	case StageSeedling:
		return 0
	case StageYoung:
		return 1
	case StageMature:
		return 2
	case StageReady:
		return 3
	default:
		return -1
	}
}

// FieldStatus is the lifecycle status of a field.
type FieldStatus string

const (
	FieldEmpty   FieldStatus = "EMPTY"
	FieldPlanted FieldStatus = "PLANTED"
	FieldReady   FieldStatus = "READY"
)

// SoilType classifies the soil of a farm.
type SoilType string

const (
	SoilClay   SoilType = "CLAY"
	SoilSandy  SoilType = "SANDY"
	SoilLoam   SoilType = "LOAM"
	SoilSilt   SoilType = "SILT"
	SoilPeat   SoilType = "PEAT"
	SoilChalky SoilType = "CHALKY"
)

// ParseSoilType upper-cases the input. Unknown soils are passed through and
// resolved to a default efficiency by the water model.
func ParseSoilType(s string) SoilType {
	return SoilType(strings.ToUpper(strings.TrimSpace(s)))
}

// FieldState is the advisory service's view of a single field.
type FieldState struct {
	FarmID      string      `json:"farm_id"`
	FieldID     string      `json:"field_id"`
	CropType    CropType    `json:"crop_type,omitempty"`
	GrowthStage GrowthStage `json:"growth_stage,omitempty"`
	PlantedDate *time.Time  `json:"planted_date,omitempty"`
	Status      FieldStatus `json:"status"`
}

// CropProfile holds the static agronomic parameters for one crop type.
type CropProfile struct {
	CropType              CropType           `yaml:"crop_type"`
	DisplayName           string             `yaml:"display_name"`
	MinTemperature        float64            `yaml:"min_temperature"`
	OptimalTemperature    float64            `yaml:"optimal_temperature"`
	MaxTemperature        float64            `yaml:"max_temperature"`
	FrostRiskTemperature  float64            `yaml:"frost_risk_temperature"`
	HeatStressTemperature float64            `yaml:"heat_stress_temperature"`
	MinSoilMoisture       float64            `yaml:"min_soil_moisture"`
	OptimalSoilMoisture   float64            `yaml:"optimal_soil_moisture"`
	MaxSoilMoisture       float64            `yaml:"max_soil_moisture"`
	WaterRequirement      float64            `yaml:"water_requirement"`
	SeedCoefficient       float64            `yaml:"seed_coefficient"`
	AllowedWaterDeficit   float64            `yaml:"allowed_water_deficit"`
	HeavyRainThreshold    float64            `yaml:"heavy_rain_threshold"`
	DiseaseRainThreshold  float64            `yaml:"disease_rain_threshold"`
	DiseaseRiskMinTemp    float64            `yaml:"disease_risk_min_temp"`
	DiseaseRiskMaxTemp    float64            `yaml:"disease_risk_max_temp"`
	MaxWindTolerance      float64            `yaml:"max_wind_tolerance"`
	DaysToYoung           int                `yaml:"days_to_young"`
	DaysToMature          int                `yaml:"days_to_mature"`
	DaysToReady           int                `yaml:"days_to_ready"`
	Params                map[string]float64 `yaml:"params"`
}

// Clone returns a deep copy of the profile.
func (p CropProfile) Clone() CropProfile {
	out := p
	out.Params = maps.Clone(p.Params)
	if out.Params == nil {
		out.Params = map[string]float64{}
	}
	return out
}

// StageForDays returns the highest stage whose day threshold has been reached.
func (p CropProfile) StageForDays(days int) GrowthStage {
	switch {
	case days >= p.DaysToReady:
		return StageReady
	case days >= p.DaysToMature:
		return StageMature
	case days >= p.DaysToYoung:
		return StageYoung
	default:
		return StageSeedling
	}
}

// AdjustedParameters is a per-evaluation copy of a CropProfile with
// feedback factors applied. It is never written back to the store.
type AdjustedParameters struct {
	CropProfile
}

// Param returns the named override parameter or def when absent.
func (p AdjustedParameters) Param(name string, def float64) float64 {
	if v, ok := p.Params[name]; ok {
		return v
	}
	return def
}
