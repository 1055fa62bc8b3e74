package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"

	"classroom-platform/dbinit/internal/config"
	"classroom-platform/dbinit/internal/orchestrator"
)

const natsProbeName = "nats"

// streamSpec describes the JetStream stream that retains ready events.
type streamSpec struct {
	name      string
	subjects  []string
	retention nats.RetentionPolicy
	maxAge    time.Duration
	maxMsgs   int64
}

// readyStream keeps the latest ready events so that a dependent started
// after the bootstrap can still read them.
func readyStream(subject string) streamSpec {
	return streamSpec{
		name:      "CLASSROOM_SCHEMA",
		subjects:  []string{subject},
		retention: nats.LimitsPolicy,
		maxAge:    7 * 24 * time.Hour,
		maxMsgs:   100,
	}
}

// jsContext is the subset of nats.JetStreamContext used here. Defining an
// interface allows test doubles to be injected without a live NATS server.
type jsContext interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	UpdateStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSClient publishes schema-ready events to JetStream and probes NATS.
type NATSClient struct {
	url     string
	subject string
	cb      *gobreaker.CircuitBreaker
	newJS   func(url string) (jsContext, func(), error)
}

// NewNATSClient constructs a NATSClient. No connection is made at construction
// time; connections are opened lazily inside PublishReady and Probe.
func NewNATSClient(cfg config.NotifyConfig, cb *gobreaker.CircuitBreaker) *NATSClient {
	return &NATSClient{
		url:     cfg.NATSURL,
		subject: cfg.Subject,
		cb:      cb,
		newJS:   realNewJS,
	}
}

// PublishReady provisions the ready stream if needed and publishes ev on the
// configured subject, waiting for the JetStream ack.
func (c *NATSClient) PublishReady(ctx context.Context, ev orchestrator.ReadyEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding ready event: %w", err)
	}

	_, err = c.cb.Execute(func() (any, error) {
		js, cleanup, err := c.newJS(c.url)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}
		defer cleanup()

		if err := provisionStream(js, readyStream(c.subject)); err != nil {
			return nil, err
		}
		if _, err := js.Publish(c.subject, data, nats.Context(ctx)); err != nil {
			return nil, fmt.Errorf("publishing to %s: %w", c.subject, err)
		}
		return nil, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return fmt.Errorf("circuit open: %w", err)
		}
		return err
	}
	return nil
}

// Probe verifies NATS connectivity and returns a ProbeResult. A missing stream
// is not treated as a failure: it only means no bootstrap has published yet.
func (c *NATSClient) Probe(ctx context.Context) orchestrator.ProbeResult {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		js, cleanup, err := c.newJS(c.url)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}
		defer cleanup()

		_, infoErr := js.StreamInfo(readyStream(c.subject).name, nats.Context(ctx))
		if infoErr != nil && !errors.Is(infoErr, nats.ErrStreamNotFound) {
			return nil, fmt.Errorf("stream info: %w", infoErr)
		}
		return nil, nil
	})

	return probeResult(natsProbeName, start, err)
}

// provisionStream creates the stream if it does not exist, or updates it if it
// does. nats.ErrStreamNotFound signals "create"; any other error is returned.
func provisionStream(js jsContext, spec streamSpec) error {
	cfg := &nats.StreamConfig{
		Name:      spec.name,
		Subjects:  spec.subjects,
		Retention: spec.retention,
		MaxAge:    spec.maxAge,
		MaxMsgs:   spec.maxMsgs,
	}

	_, err := js.StreamInfo(spec.name)
	switch {
	case errors.Is(err, nats.ErrStreamNotFound):
		if _, addErr := js.AddStream(cfg); addErr != nil {
			return fmt.Errorf("creating stream %s: %w", spec.name, addErr)
		}
	case err != nil:
		return fmt.Errorf("querying stream %s: %w", spec.name, err)
	default:
		if _, updErr := js.UpdateStream(cfg); updErr != nil {
			return fmt.Errorf("updating stream %s: %w", spec.name, updErr)
		}
	}
	return nil
}

// realNewJS opens a real NATS connection and returns a JetStreamContext plus a
// cleanup function that closes the connection.
func realNewJS(url string) (jsContext, func(), error) {
	nc, err := nats.Connect(url, nats.Name("classroom-dbinit"))
	if err != nil {
		return nil, func() {}, fmt.Errorf("nats connect %s: %w", url, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, func() {}, fmt.Errorf("nats jetstream context: %w", err)
	}

	return js, func() { nc.Close() }, nil
}
