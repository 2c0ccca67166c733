// Package crop holds the static crop parameter store and the per-farm
// parameter adjuster.
package crop

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/couchcryptid/crop-advisory-service/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var defaultProfiles []byte

type profileFile struct {
	Crops []domain.CropProfile `yaml:"crops"`
}

// Store is a read-only set of crop profiles keyed by crop type.
type Store struct {
	profiles map[domain.CropType]domain.CropProfile
}

// LoadStore reads profiles from a YAML file, or the embedded defaults when
// path is empty.
func LoadStore(path string) (*Store, error) {
	data := defaultProfiles
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read crop profiles: %w", err)
		}
		data = b
	}
	return ParseStore(data)
}

// ParseStore decodes a YAML profile document.
func ParseStore(data []byte) (*Store, error) {
	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode crop profiles: %w", err)
	}
	return NewStore(f.Crops)
}

// NewStore validates and indexes the given profiles.
func NewStore(profiles []domain.CropProfile) (*Store, error) {
	if len(profiles) == 0 {
		return nil, errors.New("no crop profiles configured")
	}
	s := &Store{profiles: make(map[domain.CropType]domain.CropProfile, len(profiles))}
	for _, p := range profiles {
		ct, err := domain.ParseCropType(string(p.CropType))
		if err != nil {
			return nil, err
		}
		if _, dup := s.profiles[ct]; dup {
			return nil, fmt.Errorf("duplicate crop profile %s", ct)
		}
		if p.DaysToYoung < 0 || p.DaysToYoung > p.DaysToMature || p.DaysToMature > p.DaysToReady {
			return nil, fmt.Errorf("crop profile %s: stage thresholds must satisfy 0 <= young <= mature <= ready", ct)
		}
		p.CropType = ct
		s.profiles[ct] = p.Clone()
	}
	return s, nil
}

// Profile returns a copy of the profile for the crop type.
func (s *Store) Profile(ct domain.CropType) (domain.CropProfile, bool) {
	p, ok := s.profiles[ct]
	if !ok {
		return domain.CropProfile{}, false
	}
	return p.Clone(), true
}

// Types lists the configured crop types in sorted order.
func (s *Store) Types() []domain.CropType {
	out := make([]domain.CropType, 0, len(s.profiles))
	for ct := range s.profiles {
		out = append(out, ct)
	}
	slices.Sort(out)
	return out
}
