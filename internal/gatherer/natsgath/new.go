package natsgath

import (
	"log/slog"

	"github.com/nats-io/nats.go"
)

type publisher interface {
	Publish(subj string, data []byte) error
}

// New creates a NATS gatherer that streams progress messages to subject.
func New(nc *nats.Conn, subject string, logger *slog.Logger) *natsGatherer {
	return newGatherer(nc, subject, logger)
}

// Connect dials the server the gatherer publishes to.
func Connect(url string) (*nats.Conn, error) {
	return nats.Connect(url, nats.Name("grader"), nats.MaxReconnects(5))
}

func newGatherer(pub publisher, subject string, logger *slog.Logger) *natsGatherer {
	if logger == nil {
		logger = slog.Default()
	}
	return &natsGatherer{
		pub:     pub,
		subject: subject,
		logger:  logger.With("component", "natsgath"),
	}
}
