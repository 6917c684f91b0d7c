package common

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
)

var validate = validator.New()

// resettable maps struct namespaces to a reset function. Fields listed here
// recover to their default on invalid input; anything else is fatal.
var resettable = map[string]func(cfg, defaults *Config){
	"Config.Harvest.RunMinutes":         func(c, d *Config) { c.Harvest.RunMinutes = d.Harvest.RunMinutes },
	"Config.Harvest.GraceMinutes":       func(c, d *Config) { c.Harvest.GraceMinutes = d.Harvest.GraceMinutes },
	"Config.Harvest.MaxMedia":           func(c, d *Config) { c.Harvest.MaxMedia = d.Harvest.MaxMedia },
	"Config.Harvest.MediaAttempts":      func(c, d *Config) { c.Harvest.MediaAttempts = d.Harvest.MediaAttempts },
	"Config.Harvest.DetailAttempts":     func(c, d *Config) { c.Harvest.DetailAttempts = d.Harvest.DetailAttempts },
	"Config.Harvest.MaxDetailFragments": func(c, d *Config) { c.Harvest.MaxDetailFragments = d.Harvest.MaxDetailFragments },
	"Config.Harvest.MaxUnreachable":     func(c, d *Config) { c.Harvest.MaxUnreachable = d.Harvest.MaxUnreachable },
	"Config.Browser.RequestsPerSecond":  func(c, d *Config) { c.Browser.RequestsPerSecond = d.Browser.RequestsPerSecond },
	"Config.Listing.MaxPages":           func(c, d *Config) { c.Listing.MaxPages = d.Listing.MaxPages },
	"Config.Listing.EmptyPageLimit":     func(c, d *Config) { c.Listing.EmptyPageLimit = d.Listing.EmptyPageLimit },
}

// ValidateConfig checks config and resets recoverable fields to their
// defaults with a warning. Only unrecoverable problems are returned.
func ValidateConfig(config *Config, logger arbor.ILogger) error {
	if !strings.Contains(config.Extractor.DetailItemSelector, "%d") {
		logger.Warn().
			Str("detail_item_selector", config.Extractor.DetailItemSelector).
			Msg("Detail item selector has no position placeholder, using default")
		config.Extractor.DetailItemSelector = NewDefaultConfig().Extractor.DetailItemSelector
	}

	err := validate.Struct(config)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("failed to validate config: %w", err)
	}

	defaults := NewDefaultConfig()
	var fatal []string
	for _, fe := range fieldErrs {
		reset, ok := resettable[fe.StructNamespace()]
		if !ok {
			fatal = append(fatal, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			continue
		}
		reset(config, defaults)
		logger.Warn().
			Str("field", fe.Namespace()).
			Str("rule", fe.Tag()).
			Str("value", fmt.Sprintf("%v", fe.Value())).
			Msg("Invalid configuration value, using default")
	}

	if len(fatal) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(fatal, ", "))
	}
	return nil
}
