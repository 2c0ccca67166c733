// Command evaluate runs a weather message fixture through the rule engine
// offline and prints the candidate recommendations for each field. Nothing is
// deduplicated, delivered, or stored.
//
// Usage:
//
//	go run ./cmd/evaluate \
//	  -weather testdata/hourly.json \
//	  -fields testdata/fields.json \
//	  -profiles internal/crop/profiles.yaml \
//	  -factors '{"allowed_water_deficit":1.2}'
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/crop-advisory-service/internal/crop"
	"github.com/couchcryptid/crop-advisory-service/internal/domain"
	"github.com/couchcryptid/crop-advisory-service/internal/observability"
	"github.com/couchcryptid/crop-advisory-service/internal/rules"
)

// step tracks pass/fail for one stage of the run.
type step struct {
	name   string
	errors []string
}

func (s *step) errorf(format string, args ...any) {
	s.errors = append(s.errors, fmt.Sprintf(format, args...))
}

func (s *step) passed() bool { return len(s.errors) == 0 }

type options struct {
	weatherPath  string
	fieldsPath   string
	profilesPath string
	factors      string
	windLimit    float64
}

func main() {
	var opts options
	flag.StringVar(&opts.weatherPath, "weather", "", "path to a weather message JSON fixture")
	flag.StringVar(&opts.fieldsPath, "fields", "", "path to a JSON array of fields (defaults to the fields or crops in the message)")
	flag.StringVar(&opts.profilesPath, "profiles", "", "crop profile YAML (defaults to the built-in profiles)")
	flag.StringVar(&opts.factors, "factors", "", "feedback factors as a JSON object")
	flag.Float64Var(&opts.windLimit, "safety-wind-limit", rules.DefaultSafetyWindLimit, "farm-wide safety wind limit in km/h")
	flag.Parse()

	if opts.weatherPath == "" {
		flag.Usage()
		os.Exit(1)
	}
	os.Exit(run(opts, os.Stdout))
}

func run(opts options, out io.Writer) int {
	load := &step{name: "Load inputs"}

	profiles, err := crop.LoadStore(opts.profilesPath)
	if err != nil {
		load.errorf("crop profiles: %v", err)
	}

	snap, err := loadSnapshot(opts.weatherPath)
	if err != nil {
		load.errorf("weather: %v", err)
	}

	fields, err := loadFields(opts.fieldsPath, snap)
	if err != nil {
		load.errorf("fields: %v", err)
	}

	factors := map[string]float64{}
	if opts.factors != "" {
		if err := json.Unmarshal([]byte(opts.factors), &factors); err != nil {
			load.errorf("factors: %v", err)
		}
	}

	if !load.passed() {
		report(out, load)
		return 1
	}

	eval := &step{name: "Evaluate"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := rules.NewEngine(logger, observability.NewMetricsForTesting(), rules.WithSafetyWindLimit(opts.windLimit))

	fmt.Fprintf(out, "=== %s snapshot for farm %s (%d points, %d fields) ===\n\n",
		snap.Granularity, snap.FarmID, len(snap.Forecast), len(fields))

	recs := engine.EvaluateFarm(snap)
	for _, f := range fields {
		profile, ok := profiles.Profile(f.CropType)
		if !ok {
			eval.errorf("field %q: no profile for crop %q", f.FieldID, f.CropType)
			continue
		}
		recs = append(recs, engine.Evaluate(crop.Adjust(profile, factors), f, snap)...)
	}

	for _, r := range recs {
		target := r.FieldID
		if r.FarmWide() {
			target = "(farm)"
		}
		fmt.Fprintf(out, "  %-10s %-14s %-24s %-6s %s\n", target, r.CropType, r.Type, r.Type.Lane(), r.Advice)
		fmt.Fprintf(out, "  %-10s %s\n", "", r.Reasoning)
		if len(r.Metrics) > 0 {
			fmt.Fprintf(out, "  %-10s %s\n", "", formatMetrics(r.Metrics))
		}
	}
	if len(recs) == 0 {
		fmt.Fprintln(out, "  no recommendations, conditions are normal")
	}

	report(out, load, eval)
	fmt.Fprintf(out, "\n%d recommendation(s)\n", len(recs))
	return 0
}

func report(out io.Writer, steps ...*step) {
	fmt.Fprintln(out)
	for _, s := range steps {
		status := "\033[32mOK\033[0m"
		if !s.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(s.errors))
		}
		fmt.Fprintf(out, "  %-20s %s\n", s.name, status)
	}
	for _, s := range steps {
		for i, e := range s.errors {
			fmt.Fprintf(out, "  [%s %d] %s\n", s.name, i+1, e)
		}
	}
}

func loadSnapshot(path string) (domain.WeatherSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.WeatherSnapshot{}, err
	}
	return domain.ParseWeatherMessage(domain.RawEvent{Value: data, Timestamp: time.Now().UTC()})
}

// loadFields reads the fields file, falling back to the fields or crops
// carried by the snapshot.
func loadFields(path string, snap domain.WeatherSnapshot) ([]domain.FieldState, error) {
	if path == "" {
		if len(snap.Fields) > 0 {
			return snap.Fields, nil
		}
		var out []domain.FieldState
		for _, name := range snap.Crops {
			ct, err := domain.ParseCropType(name)
			if err != nil {
				return nil, err
			}
			out = append(out, domain.FieldState{FarmID: snap.FarmID, CropType: ct, Status: domain.FieldPlanted})
		}
		return out, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fields []domain.FieldState
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for i := range fields {
		fields[i].FarmID = snap.FarmID
		fields[i].CropType = domain.CropType(strings.ToUpper(string(fields[i].CropType)))
		if fields[i].Status == "" {
			fields[i].Status = domain.FieldPlanted
		}
	}
	return fields, nil
}

func formatMetrics(m map[string]float64) string {
	parts := make([]string, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		parts = append(parts, fmt.Sprintf("%s=%.2f", k, m[k]))
	}
	return strings.Join(parts, " ")
}
