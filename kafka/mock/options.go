package mockkafka

import (
	"errors"
	"time"

	"github.com/hugolhafner/go-connect/kafka"
)

var ErrClosed = errors.New("mockkafka: client closed")

// Option is a functional option for configuring a mock Client.
type Option func(*Client)

// WithMaxPollRecords sets the maximum number of records returned per Poll call.
// Default is 10.
func WithMaxPollRecords(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPollRecords = n
		}
	}
}

// WithPollDelay adds an artificial delay to Poll calls.
func WithPollDelay(d time.Duration) Option {
	return func(c *Client) {
		c.pollDelay = d
	}
}

// WithResetPolicy sets where an unset position resolves. Default is latest.
func WithResetPolicy(p kafka.ResetPolicy) Option {
	return func(c *Client) {
		c.resetPolicy = p
	}
}

// WithPollError configures an error to be returned by all Poll calls.
func WithPollError(err error) Option {
	return func(c *Client) {
		c.pollErr = func() error { return err }
	}
}

// WithPartitionsForError configures an error to be returned by PartitionsFor.
func WithPartitionsForError(err error) Option {
	return func(c *Client) {
		c.partitionsErr = err
	}
}
