package logging

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := map[string]struct {
		config  Config
		wantErr bool
	}{
		"empty":          {config: Config{}},
		"text info":      {config: Config{Level: "info", Format: "text"}},
		"json debug":     {config: Config{Level: "debug", Format: "JSON"}},
		"bad level":      {config: Config{Level: "loud"}, wantErr: true},
		"unknown format": {config: Config{Format: "xml"}, wantErr: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := tc.config.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWithStacktrace(t *testing.T) {
	logger, hook := test.NewNullLogger()
	err := errors.Wrap(errors.New("root cause"), "outer")

	WithStacktrace(logrus.NewEntry(logger), err).Error("failed")

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, err, entry.Data[logrus.ErrorKey])
	assert.NotNil(t, entry.Data[Stacktrace])
}

func TestWithStacktraceWithoutStack(t *testing.T) {
	logger, hook := test.NewNullLogger()
	WithStacktrace(logrus.NewEntry(logger), plainError{}).Warn("failed")

	require.Len(t, hook.Entries, 1)
	_, ok := hook.LastEntry().Data[Stacktrace]
	assert.False(t, ok)
}

func TestPrometheusHookCountsByLevel(t *testing.T) {
	registry := prometheus.NewRegistry()
	hook, err := NewPrometheusHook(registry)
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	logger.AddHook(hook)
	logger.Info("a")
	logger.Info("b")
	logger.Warn("c")

	assert.Equal(t, 2.0, testutil.ToFloat64(hook.counter.WithLabelValues("info")))
	assert.Equal(t, 1.0, testutil.ToFloat64(hook.counter.WithLabelValues("warning")))
}

type plainError struct{}

func (plainError) Error() string { return "plain" }
