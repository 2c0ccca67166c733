package crop

import (
	"strings"

	"github.com/couchcryptid/crop-advisory-service/internal/domain"
)

// Adjust applies per-farm feedback factors to a copy of the profile. A factor
// whose name matches a known scalar multiplies that field; otherwise a factor
// matching an override parameter key multiplies that entry. Unmatched factors
// are ignored. The input profile is never modified.
func Adjust(profile domain.CropProfile, factors map[string]float64) domain.AdjustedParameters {
	p := profile.Clone()
	for name, f := range factors {
		if scalar := scalarField(&p, name); scalar != nil {
			*scalar *= f
			continue
		}
		if v, ok := p.Params[name]; ok {
			p.Params[name] = v * f
		}
	}
	return domain.AdjustedParameters{CropProfile: p}
}

func scalarField(p *domain.CropProfile, name string) *float64 {
	switch normalizeName(name) {
	case "mintemperature":
		return &p.MinTemperature
	case "maxtemperature", "heatstresstemperature":
		return &p.HeatStressTemperature
	case "frostrisktemperature":
		return &p.FrostRiskTemperature
	case "allowedwaterdeficit":
		return &p.AllowedWaterDeficit
	case "seedcoefficient", "watercoefficient":
		return &p.SeedCoefficient
	case "minsoilmoisture":
		return &p.MinSoilMoisture
	case "heavyrainthreshold":
		return &p.HeavyRainThreshold
	case "diseaserainthreshold":
		return &p.DiseaseRainThreshold
	case "diseaseriskmintemp":
		return &p.DiseaseRiskMinTemp
	case "diseaseriskmaxtemp":
		return &p.DiseaseRiskMaxTemp
	case "maxwindtolerance":
		return &p.MaxWindTolerance
	default:
		return nil
	}
}

var nameReplacer = strings.NewReplacer("_", "", "-", "", " ", "")

func normalizeName(name string) string {
	return strings.ToLower(nameReplacer.Replace(name))
}
