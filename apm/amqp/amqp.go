// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/queue-autoscaler/apm"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// DriverName is the name used to reference this driver within agent
	// configuration.
	DriverName = "amqp"

	// configKeyAddress is the accepted configuration key which holds the
	// AMQP URI of the broker.
	configKeyAddress = "address"
)

var _ apm.Driver = (*Source)(nil)
var _ apm.Reconnector = (*Source)(nil)

// channel is the subset of *amqp.Channel used by the Source.
type channel interface {
	QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Close() error
}

// connection is the subset of *amqp.Connection used by the Source.
type connection interface {
	channel() (channel, error)
	IsClosed() bool
	Close() error
}

type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) channel() (channel, error) { return c.Channel() }

func dialAMQP(addr string) (connection, error) {
	conn, err := amqp.Dial(addr)
	if err != nil {
		return nil, err
	}
	return amqpConnection{conn}, nil
}

// Source reads queue depth from a RabbitMQ broker by passively declaring the
// queue and reading its ready message count.
type Source struct {
	logger  hclog.Logger
	address string
	dial    func(addr string) (connection, error)

	lock sync.Mutex
	conn connection
	ch   channel
}

// New returns a Source configured from the passed driver config.
func New(logger hclog.Logger, config map[string]string) (*Source, error) {
	addr, ok := config[configKeyAddress]
	if !ok || addr == "" {
		return nil, fmt.Errorf("%q config value cannot be empty", configKeyAddress)
	}

	uri, err := amqp.ParseURI(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %q: %v", configKeyAddress, err)
	}

	return &Source{
		logger:  logger.Named(DriverName).With("host", uri.Host, "vhost", uri.Vhost),
		address: addr,
		dial:    dialAMQP,
	}, nil
}

// Connect dials the broker and opens a channel.
func (s *Source) Connect(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.connectLocked()
}

// Reconnect discards any existing connection and dials the broker again.
func (s *Source) Reconnect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.closeLocked()
	return s.connectLocked()
}

func (s *Source) connectLocked() error {
	conn, err := s.dial(s.address)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %v", err)
	}

	ch, err := conn.channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %v", err)
	}

	s.conn, s.ch = conn, ch
	s.logger.Debug("connected to broker")
	return nil
}

// Sample returns the number of ready messages in the queue. amqp091 calls
// do not take a context; a hung broker is detected by the connection
// heartbeat, which closes the connection and fails the pending call.
func (s *Source) Sample(_ context.Context, queue string) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.conn == nil || s.conn.IsClosed() {
		return 0, fmt.Errorf("%w: connection to broker is closed", apm.ErrBrokerDisconnected)
	}

	// A channel exception, such as a 404 from a passive declare of a queue
	// which does not exist, closes the channel. Open a new one lazily.
	if s.ch == nil {
		ch, err := s.conn.channel()
		if err != nil {
			return 0, s.classify(queue, err)
		}
		s.ch = ch
	}

	q, err := s.ch.QueueDeclarePassive(queue, true, false, false, false, nil)
	if err != nil {
		// The broker may already have closed the channel, in which case
		// Close only reports that.
		_ = s.ch.Close()
		s.ch = nil
		return 0, s.classify(queue, err)
	}

	return q.Messages, nil
}

// classify maps an AMQP error onto the apm error taxonomy.
func (s *Source) classify(queue string, err error) error {
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) && amqpErr.Code == amqp.NotFound {
		return fmt.Errorf("%w: queue %q not found", apm.ErrMetricUnavailable, queue)
	}

	if errors.Is(err, amqp.ErrClosed) || s.conn.IsClosed() {
		return fmt.Errorf("%w: %v", apm.ErrBrokerDisconnected, err)
	}
	return fmt.Errorf("%w: %v", apm.ErrMetricUnavailable, err)
}

// Close closes the channel and connection.
func (s *Source) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.closeLocked()
}

func (s *Source) closeLocked() error {
	if s.ch != nil {
		_ = s.ch.Close()
		s.ch = nil
	}
	if s.conn == nil {
		return nil
	}

	conn := s.conn
	s.conn = nil
	if conn.IsClosed() {
		return nil
	}
	return conn.Close()
}
