package config

import (
	"time"

	"github.com/nats-io/nats.go"
)

type NatsConfig struct {
	Url string `validate:"required"`
	// Prefix of every request subject, e.g. "batchsched" gives "batchsched.targets.list".
	SubjectPrefix  string        `validate:"required"`
	RequestTimeout time.Duration `validate:"gt=0"`
	Name           string
}

// Connect opens a connection to the configured nats server.
func (nc NatsConfig) Connect() (*nats.Conn, error) {
	options := []nats.Option{nats.MaxReconnects(-1)}
	if nc.Name != "" {
		options = append(options, nats.Name(nc.Name))
	}
	return nats.Connect(nc.Url, options...)
}
