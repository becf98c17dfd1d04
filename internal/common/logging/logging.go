package logging

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

const RFC3339Milli = "2006-01-02T15:04:05.000Z07:00"

// ConfigureLogging sets up the standard logrus logger for console output.
// Applications call this once at startup, before the configuration is loaded.
func ConfigureLogging() {
	log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true, TimestampFormat: RFC3339Milli})
	log.SetOutput(os.Stdout)
}

// ApplyConfig reconfigures the standard logger according to config.
// It's applied after the configuration is loaded; invalid values are rejected before anything changes.
func ApplyConfig(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	if config.Level != "" {
		level, _ := log.ParseLevel(config.Level)
		log.SetLevel(level)
	}
	if strings.ToLower(config.Format) == "json" {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: RFC3339Milli})
	}
	return nil
}
