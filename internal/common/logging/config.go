package logging

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

// Config defines logging configuration for batchsched binaries.
type Config struct {
	// Log level, e.g. info, debug, warn.
	Level string
	// Logging format, either text or json.
	Format string
}

// Validate returns an error if the level can't be parsed or the format is unknown.
func (c Config) Validate() error {
	if c.Level != "" {
		if _, err := logrus.ParseLevel(c.Level); err != nil {
			return errors.WithStack(err)
		}
	}
	if c.Format != "" && !validLogFormats[strings.ToLower(c.Format)] {
		formats := maps.Keys(validLogFormats)
		slices.Sort(formats)
		return errors.Errorf("unknown log format %q; valid formats are %s", c.Format, strings.Join(formats, ", "))
	}
	return nil
}
