package dofigen

import (
	"regexp"

	"github.com/pkg/errors"
)

var durationPattern = regexp.MustCompile(`^\d+(ms|s|m|h)$`)

const (
	defaultHealthcheckInterval    = "30s"
	defaultHealthcheckTimeout     = "30s"
	defaultHealthcheckStartPeriod = "0s"
	defaultHealthcheckRetries     = 3
)

// Healthcheck mirrors the Dockerfile HEALTHCHECK instruction.
type Healthcheck struct {
	Cmd         []string `yaml:"cmd,omitempty" json:"cmd,omitempty"`
	Interval    string   `yaml:"interval,omitempty" json:"interval,omitempty"`
	Timeout     string   `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	StartPeriod string   `yaml:"startPeriod,omitempty" json:"startPeriod,omitempty"`
	Retries     int      `yaml:"retries,omitempty" json:"retries,omitempty"`
	None        bool     `yaml:"none,omitempty" json:"none,omitempty"`
}

func (h *Healthcheck) fillDefaults() {
	if h.None {
		return
	}
	if h.Interval == "" {
		h.Interval = defaultHealthcheckInterval
	}
	if h.Timeout == "" {
		h.Timeout = defaultHealthcheckTimeout
	}
	if h.StartPeriod == "" {
		h.StartPeriod = defaultHealthcheckStartPeriod
	}
	if h.Retries == 0 {
		h.Retries = defaultHealthcheckRetries
	}
}

func (h *Healthcheck) validate() error {
	if h.None {
		return nil
	}
	for _, d := range []struct{ name, val string }{
		{"interval", h.Interval}, {"timeout", h.Timeout}, {"startPeriod", h.StartPeriod},
	} {
		if d.val != "" && !durationPattern.MatchString(d.val) {
			return errors.Errorf("healthcheck.%s: invalid duration %q", d.name, d.val)
		}
	}
	if h.Retries < 0 {
		return errors.New("healthcheck.retries must be non-negative")
	}
	return nil
}
