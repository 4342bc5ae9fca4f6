package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"qna-coin-ledger-go/internal/rules"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

type rulesFile struct {
	Costs rules.Costs `yaml:"costs"`
}

// LoadCosts reads coin amounts from a YAML rules file. Amounts missing from the file
// keep their defaults, and a missing file yields the defaults.
func LoadCosts(rulesPath string) (rules.Costs, error) {
	path := rulesPath
	if !filepath.IsAbs(path) {
		wd, err := os.Getwd()
		if err != nil {
			return rules.Costs{}, fmt.Errorf("failed to get working directory: %w", err)
		}
		path = filepath.Join(wd, rulesPath)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		zap.L().Info("No rules file found, using default costs", zap.String("path", path))
		return rules.DefaultCosts(), nil
	}
	if err != nil {
		return rules.Costs{}, fmt.Errorf("unable to read %s: %w", rulesPath, err)
	}

	cfg := rulesFile{Costs: rules.DefaultCosts()}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return rules.Costs{}, fmt.Errorf("unable to parse %s: %w", rulesPath, err)
	}
	if err := cfg.Costs.Validate(); err != nil {
		return rules.Costs{}, fmt.Errorf("invalid %s: %w", rulesPath, err)
	}
	return cfg.Costs, nil
}
