package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aristath/sigmaguard/internal/clients/yahoo"
	"github.com/aristath/sigmaguard/internal/domain"
	"github.com/aristath/sigmaguard/internal/modules/allocation"
	"github.com/aristath/sigmaguard/internal/modules/scoring"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Policy is the YAML-configured watchlist and risk policy.
// Loaded once at startup and never mutated afterwards.
type Policy struct {
	Watchlist []domain.WatchlistItem `yaml:"watchlist" validate:"required,min=1,unique=Ticker,dive"`
	Settings  Settings               `yaml:"settings"`
	Schedule  Schedule               `yaml:"schedule"`
	Yahoo     yahoo.Config           `yaml:"yahoo"`
}

// Settings are the tunable policy constants
type Settings struct {
	YearsToAnalyze int `yaml:"years_to_analyze" default:"5" validate:"gte=1,lte=20"`
	Workers        int `yaml:"workers" default:"4" validate:"gte=1,lte=64"`

	AccountRiskLimit float64 `yaml:"account_risk_limit" default:"0.008" validate:"gt=0,lt=1"`
	MaxWeight        float64 `yaml:"max_weight" default:"20" validate:"gt=0,lte=100"`
	EIBenchmark      float64 `yaml:"ei_benchmark" default:"0.2" validate:"gt=0"`

	SmoothingAlpha float64 `yaml:"smoothing_alpha" default:"0.5" validate:"gt=0,lte=1"`
	SigmaCritical  float64 `yaml:"sigma_critical" default:"2.5" validate:"gt=0"`

	LivermoreMaxSigma float64 `yaml:"livermore_max_sigma" default:"2.0" validate:"gt=0"`
	LivermoreMinR2    float64 `yaml:"livermore_min_r2" default:"0.5" validate:"gte=0,lte=1"`
	LivermoreMinADX   float64 `yaml:"livermore_min_adx" default:"25" validate:"gte=0,lte=100"`
	LivermoreMinMFI   float64 `yaml:"livermore_min_mfi" default:"40" validate:"gte=0,lte=100"`
}

// Schedule holds the cron expressions used by serve mode
type Schedule struct {
	Audit        string `yaml:"audit" default:"30 22 * * 1-5" validate:"required"`
	CacheCleanup string `yaml:"cache_cleanup" default:"0 3 * * *" validate:"required"`
	Maintenance  string `yaml:"maintenance" default:"0 4 * * 0" validate:"required"`
}

// LoadPolicy reads, defaults and validates the policy file at path
func LoadPolicy(path string) (*Policy, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(b)
}

// ParsePolicy parses a YAML policy document
func ParsePolicy(b []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}

	if err := defaults.Set(&p); err != nil {
		return nil, fmt.Errorf("apply policy defaults: %w", err)
	}

	for i := range p.Watchlist {
		p.Watchlist[i].Ticker = strings.ToUpper(strings.TrimSpace(p.Watchlist[i].Ticker))
	}

	if err := validate.Struct(&p); err != nil {
		return nil, fmt.Errorf("validate policy: %w", describeValidation(err))
	}
	return &p, nil
}

// ScoringPolicy maps the settings onto the scoring engine
func (p *Policy) ScoringPolicy() scoring.Policy {
	s := p.Settings
	return scoring.Policy{
		SmoothingAlpha:    s.SmoothingAlpha,
		SigmaCritical:     s.SigmaCritical,
		LivermoreMaxSigma: s.LivermoreMaxSigma,
		LivermoreMinR2:    s.LivermoreMinR2,
		LivermoreMinADX:   s.LivermoreMinADX,
		LivermoreMinMFI:   s.LivermoreMinMFI,
	}
}

// AllocationPolicy maps the settings onto the allocator
func (p *Policy) AllocationPolicy() allocation.Policy {
	return allocation.Policy{
		AccountRiskLimit: p.Settings.AccountRiskLimit,
		MaxWeightPct:     p.Settings.MaxWeight,
		EIBenchmark:      p.Settings.EIBenchmark,
	}
}

// HistoryPeriod is the provider period covering the analysis window plus one
// year of indicator warm-up.
func (p *Policy) HistoryPeriod() string {
	return fmt.Sprintf("%dy", p.Settings.YearsToAnalyze+1)
}

// Lookup returns the watchlist item for ticker
func (p *Policy) Lookup(ticker string) (domain.WatchlistItem, bool) {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	for _, item := range p.Watchlist {
		if item.Ticker == t {
			return item, true
		}
	}
	return domain.WatchlistItem{}, false
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must have at least %s entries", field, fe.Param()))
		case "unique":
			msgs = append(msgs, fmt.Sprintf("%s contains duplicate %s values", field, fe.Param()))
		case "gt", "gte", "lt", "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be %s %s", field, fe.Tag(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed validation: %s", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
