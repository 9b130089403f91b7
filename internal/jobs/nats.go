// internal/jobs/nats.go
//
// JetStream transport.
//
// Envelopes are published as JSON to "<subject prefix>.<job name>" on one
// stream.  Workers share a durable pull consumer, so each envelope goes
// to one worker.  Fatal handler errors terminate the message; other
// errors NAK it for redelivery up to MaxDeliver.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// NATSOptions configures the stream and consumer.
type NATSOptions struct {
	Stream     string
	Subject    string // prefix, e.g. "civitas.jobs"
	Durable    string
	MaxDeliver int
	AckWait    time.Duration
}

func (o *NATSOptions) defaults() {
	if o.Stream == "" {
		o.Stream = "CIVITAS_JOBS"
	}
	if o.Subject == "" {
		o.Subject = "civitas.jobs"
	}
	if o.Durable == "" {
		o.Durable = "civitas-workers"
	}
	if o.MaxDeliver == 0 {
		o.MaxDeliver = 5
	}
	if o.AckWait == 0 {
		o.AckWait = 2 * time.Minute
	}
}

// NATSQueue implements Queue over JetStream.
type NATSQueue struct {
	nc   *nats.Conn
	js   jetstream.JetStream
	opts NATSOptions
	log  *zap.Logger
}

// ConnectNATS dials url and ensures the stream exists.
func ConnectNATS(ctx context.Context, url string, opts NATSOptions, log *zap.Logger) (*NATSQueue, error) {
	opts.defaults()
	if log == nil {
		log = zap.L()
	}

	nc, err := nats.Connect(url, nats.Name("civitas"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     opts.Stream,
		Subjects: []string{opts.Subject + ".>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	log.Info("nats connected", zap.String("url", url), zap.String("stream", opts.Stream))
	return &NATSQueue{nc: nc, js: js, opts: opts, log: log}, nil
}

func (q *NATSQueue) subject(name string) string {
	return q.opts.Subject + "." + strings.ReplaceAll(name, ".", "_")
}

// Publish implements Queue.
func (q *NATSQueue) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if _, err := q.js.Publish(ctx, q.subject(env.Name), data, jetstream.WithMsgID(env.ID)); err != nil {
		return fmt.Errorf("nats publish %s: %w", env.Name, err)
	}
	return nil
}

// Subscribe implements Queue.
func (q *NATSQueue) Subscribe(ctx context.Context, handle func(context.Context, Envelope) error) error {
	cons, err := q.js.CreateOrUpdateConsumer(ctx, q.opts.Stream, jetstream.ConsumerConfig{
		Durable:       q.opts.Durable,
		FilterSubject: q.opts.Subject + ".>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       q.opts.AckWait,
		MaxDeliver:    q.opts.MaxDeliver,
	})
	if err != nil {
		return fmt.Errorf("nats consumer create: %w", err)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		batch, err := cons.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return ctx.Err()
			}
			q.log.Warn("nats fetch failed", zap.Error(err))
			continue
		}
		for msg := range batch.Messages() {
			q.deliver(ctx, msg, handle)
		}
		if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
			q.log.Debug("nats batch ended", zap.Error(err))
		}
	}
}

func (q *NATSQueue) deliver(ctx context.Context, msg jetstream.Msg, handle func(context.Context, Envelope) error) {
	var env Envelope
	if err := json.Unmarshal(msg.Data(), &env); err != nil {
		q.log.Error("nats envelope undecodable", zap.String("subject", msg.Subject()), zap.Error(err))
		_ = msg.Term()
		return
	}
	if md, err := msg.Metadata(); err == nil {
		env.Attempt = int(md.NumDelivered) - 1
	}

	err := handle(ctx, env)
	switch {
	case err == nil:
		if ackErr := msg.Ack(); ackErr != nil {
			q.log.Error("nats ack failed", zap.Error(ackErr))
		}
	case IsFatal(err):
		if termErr := msg.Term(); termErr != nil {
			q.log.Error("nats term failed", zap.Error(termErr))
		}
	default:
		if nakErr := msg.Nak(); nakErr != nil {
			q.log.Error("nats nak failed", zap.Error(nakErr))
		}
	}
}

// Close drains the connection.
func (q *NATSQueue) Close() error {
	return q.nc.Drain()
}
