package analysis

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// PolicyConfig holds the licensing thresholds the policy step assesses
// against. Loaded from YAML so policy staff can adjust limits without a
// code change; embedded verbatim into the policy-role prompt.
type PolicyConfig struct {
	// MinCertificationRatio is the minimum certified-to-total worker ratio.
	MinCertificationRatio float64 `yaml:"min_certification_ratio"`

	// MaxOverdueBalance is the largest overdue account balance tolerated
	// before a violation is flagged.
	MaxOverdueBalance float64 `yaml:"max_overdue_balance"`

	// MinYearsExperience is the minimum declared abatement experience.
	MinYearsExperience int `yaml:"min_years_experience"`

	// TestAccountMarkers are name substrings that indicate a test or demo
	// submission rather than a real applicant.
	TestAccountMarkers []string `yaml:"test_account_markers"`
}

// DefaultPolicy returns the standing policy thresholds.
func DefaultPolicy() PolicyConfig {
	return PolicyConfig{
		MinCertificationRatio: 0.5,
		MaxOverdueBalance:     0,
		MinYearsExperience:    2,
		TestAccountMarkers:    []string{"test", "demo", "sample"},
	}
}

// LoadPolicy reads policy thresholds from a YAML file, filling unset
// fields from the defaults.
func LoadPolicy(path string) (PolicyConfig, error) {
	cfg := DefaultPolicy()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, eris.Wrapf(err, "policy: read config %s", path)
	}

	var wrapper struct {
		Policy PolicyConfig `yaml:"policy"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return cfg, eris.Wrap(err, "policy: parse config")
	}

	loaded := wrapper.Policy
	if loaded.MinCertificationRatio > 0 {
		cfg.MinCertificationRatio = loaded.MinCertificationRatio
	}
	if loaded.MaxOverdueBalance > 0 {
		cfg.MaxOverdueBalance = loaded.MaxOverdueBalance
	}
	if loaded.MinYearsExperience > 0 {
		cfg.MinYearsExperience = loaded.MinYearsExperience
	}
	if len(loaded.TestAccountMarkers) > 0 {
		cfg.TestAccountMarkers = loaded.TestAccountMarkers
	}
	return cfg, nil
}
