package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TariffSeed describes providers and rate structures loaded into the
// in-memory store on startup. Used by development deployments that run
// without a database.
type TariffSeed struct {
	Providers []SeedProvider `yaml:"providers"`
}

// SeedProvider is one provider entry in the tariff seed file.
type SeedProvider struct {
	Name     string            `yaml:"name"`
	Region   string            `yaml:"region"`
	Website  string            `yaml:"website"`
	Metadata map[string]string `yaml:"metadata"`
	Rates    []SeedRate        `yaml:"rates"`
}

// SeedRate is one rate structure under a seed provider.
type SeedRate struct {
	Name               string       `yaml:"name"`
	Kind               string       `yaml:"kind"`
	Currency           string       `yaml:"currency"`
	FixedMonthlyCharge float64      `yaml:"fixed_monthly_charge"`
	PricePerKWh        float64      `yaml:"price_per_kwh"`
	Tiers              []SeedTier   `yaml:"tiers"`
	TimeOfUse          []SeedPeriod `yaml:"time_of_use"`
	EffectiveFrom      time.Time    `yaml:"effective_from"`
	EffectiveUntil     time.Time    `yaml:"effective_until"`
}

// SeedTier is one consumption tier of a tiered seed rate.
type SeedTier struct {
	UpToKWh     float64 `yaml:"up_to_kwh"`
	PricePerKWh float64 `yaml:"price_per_kwh"`
}

// SeedPeriod is one daily hour window of a time-of-use seed rate.
type SeedPeriod struct {
	Label       string  `yaml:"label"`
	StartHour   int     `yaml:"start_hour"`
	EndHour     int     `yaml:"end_hour"`
	PricePerKWh float64 `yaml:"price_per_kwh"`
}

// LoadTariffSeed reads and parses a tariff seed file.
func LoadTariffSeed(path string) (*TariffSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tariff seed %s: %w", path, err)
	}

	var seed TariffSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse tariff seed %s: %w", path, err)
	}

	for i, p := range seed.Providers {
		if p.Name == "" {
			return nil, fmt.Errorf("tariff seed %s: provider %d missing name", path, i)
		}
	}
	return &seed, nil
}
