// Package config loads the connector descriptor from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hugolhafner/go-connect/kafka"
	"github.com/hugolhafner/go-connect/logger"
	"gopkg.in/yaml.v3"
)

// StoreKind selects the checkpoint backend.
type StoreKind string

const (
	StoreFile   StoreKind = "file"
	StorePebble StoreKind = "pebble"
	StoreMemory StoreKind = "memory"
)

// ErrorPolicy is what happens to a record once retries are used up.
type ErrorPolicy string

const (
	ErrorContinue ErrorPolicy = "continue"
	ErrorFail     ErrorPolicy = "fail"
)

// Kafka property keys understood by KgoOptions.
const (
	PropBootstrapServers = "bootstrap.servers"
	PropClientID         = "client.id"
	PropAutoOffsetReset  = "auto.offset.reset"
	PropMaxPollRecords   = "max.poll.records"
	PropFetchMaxWaitMs   = "fetch.max.wait.ms"
)

const (
	DefaultDataDir       = "data"
	DefaultListenAddress = ":8080"
	DefaultPollWait      = 5 * time.Second
	DefaultPollWaitMore  = 500 * time.Millisecond
	DefaultMaxRounds     = 20
	DefaultRetryBackoff  = 100 * time.Millisecond
)

var (
	ErrNoTopic        = errors.New("topic is required")
	ErrNoTarget       = errors.New("one of localDispatchPath or remoteEndpoint is required")
	ErrBothTargets    = errors.New("localDispatchPath and remoteEndpoint are mutually exclusive")
	ErrUnknownStore   = errors.New("unknown stateStore")
	ErrUnknownPolicy  = errors.New("unknown errors.policy")
	ErrInvalidSetting = errors.New("invalid setting")
)

// Connector describes one connector instance: the stream it consumes, where
// records are delivered and where progress is kept.
type Connector struct {
	Name      string `yaml:"name"`
	Topic     string `yaml:"topic"`
	Partition int32  `yaml:"partition"`

	// ReplayTopic restarts from the earliest retained offset on every start.
	ReplayTopic bool `yaml:"replayTopic"`
	// SyncTopic reconciles the checkpoint against the broker position.
	SyncTopic bool `yaml:"syncTopic"`

	LocalDispatchPath string `yaml:"localDispatchPath"`
	RemoteEndpoint    string `yaml:"remoteEndpoint"`
	// ContentTypes, when set, limits delivery to records whose Content-Type
	// header is listed. Other records are skipped and still checkpointed.
	ContentTypes []string `yaml:"contentTypes"`

	DataDir    string    `yaml:"dataDir"`
	StateStore StoreKind `yaml:"stateStore"`
	// StateFile defaults to <dataDir>/<topic>.offset.
	StateFile string `yaml:"stateFile"`

	PollWait          time.Duration `yaml:"pollWait"`
	PollWaitMore      time.Duration `yaml:"pollWaitMore"`
	MaxRoundsPerCycle int           `yaml:"maxRoundsPerCycle"`

	Errors Errors `yaml:"errors"`
	Server Server `yaml:"server"`

	// Kafka holds broker client properties in their usual dotted form.
	Kafka map[string]string `yaml:"kafka"`
}

type Errors struct {
	Policy       ErrorPolicy   `yaml:"policy"`
	MaxAttempts  int           `yaml:"maxAttempts"`
	RetryBackoff time.Duration `yaml:"retryBackoff"`
}

type Server struct {
	Address string `yaml:"address"`
}

// Load reads and parses the descriptor at path, then applies defaults.
// Validation is left to the caller.
func Load(path string) (Connector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Connector{}, fmt.Errorf("read config: %w", err)
	}

	c, err := Parse(data)
	if err != nil {
		return Connector{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c, nil
}

func Parse(data []byte) (Connector, error) {
	var c Connector
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Connector{}, err
	}
	c.Normalize()
	return c, nil
}

// Normalize fills unset fields with defaults.
func (c *Connector) Normalize() {
	c.Topic = strings.TrimSpace(c.Topic)
	if c.Name == "" {
		c.Name = c.Topic
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.StateStore == "" {
		c.StateStore = StoreFile
	}
	if c.StateFile == "" && c.Topic != "" {
		c.StateFile = filepath.Join(c.DataDir, c.Topic+".offset")
	}
	if c.PollWait <= 0 {
		c.PollWait = DefaultPollWait
	}
	if c.PollWaitMore <= 0 {
		c.PollWaitMore = DefaultPollWaitMore
	}
	if c.MaxRoundsPerCycle <= 0 {
		c.MaxRoundsPerCycle = DefaultMaxRounds
	}
	if c.Errors.Policy == "" {
		c.Errors.Policy = ErrorContinue
	}
	if c.Errors.MaxAttempts <= 0 {
		c.Errors.MaxAttempts = 1
	}
	if c.Errors.RetryBackoff <= 0 {
		c.Errors.RetryBackoff = DefaultRetryBackoff
	}
	if c.Server.Address == "" {
		c.Server.Address = DefaultListenAddress
	}
	if c.Kafka == nil {
		c.Kafka = make(map[string]string)
	}
}

func (c *Connector) Validate() error {
	var errs []error

	if c.Topic == "" {
		errs = append(errs, ErrNoTopic)
	}
	if c.Partition < 0 {
		errs = append(errs, fmt.Errorf("%w: partition %d", ErrInvalidSetting, c.Partition))
	}

	switch {
	case c.LocalDispatchPath == "" && c.RemoteEndpoint == "":
		errs = append(errs, ErrNoTarget)
	case c.LocalDispatchPath != "" && c.RemoteEndpoint != "":
		errs = append(errs, ErrBothTargets)
	case c.LocalDispatchPath != "" && !strings.HasPrefix(c.LocalDispatchPath, "/"):
		errs = append(errs, fmt.Errorf("%w: localDispatchPath must start with /", ErrInvalidSetting))
	}

	switch c.StateStore {
	case StoreFile, StorePebble, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("%w %q", ErrUnknownStore, c.StateStore))
	}

	switch c.Errors.Policy {
	case ErrorContinue, ErrorFail:
	default:
		errs = append(errs, fmt.Errorf("%w %q", ErrUnknownPolicy, c.Errors.Policy))
	}

	if v, ok := c.Kafka[PropAutoOffsetReset]; ok {
		if _, err := parseResetPolicy(v); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (c *Connector) TopicPartition() kafka.TopicPartition {
	return kafka.TopicPartition{Topic: c.Topic, Partition: c.Partition}
}

// Target is the dispatch target for log lines.
func (c *Connector) Target() string {
	if c.LocalDispatchPath != "" {
		return "local:" + c.LocalDispatchPath
	}
	return c.RemoteEndpoint
}

// KgoOptions maps the kafka properties onto broker client options. Unknown
// keys are logged and ignored.
func (c *Connector) KgoOptions(l logger.Logger) ([]kafka.KgoOption, error) {
	opts := []kafka.KgoOption{kafka.WithLogger(l)}

	keys := make([]string, 0, len(c.Kafka))
	for k := range c.Kafka {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := strings.TrimSpace(c.Kafka[key])

		switch key {
		case PropBootstrapServers:
			var servers []string
			for _, s := range strings.Split(value, ",") {
				if s = strings.TrimSpace(s); s != "" {
					servers = append(servers, s)
				}
			}
			if len(servers) == 0 {
				return nil, fmt.Errorf("%w: %s is empty", ErrInvalidSetting, key)
			}
			opts = append(opts, kafka.WithBootstrapServers(servers))

		case PropClientID:
			opts = append(opts, kafka.WithClientID(value))

		case PropAutoOffsetReset:
			p, err := parseResetPolicy(value)
			if err != nil {
				return nil, err
			}
			opts = append(opts, kafka.WithResetPolicy(p))

		case PropMaxPollRecords:
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("%w: %s=%q", ErrInvalidSetting, key, value)
			}
			opts = append(opts, kafka.WithMaxPollRecords(n))

		case PropFetchMaxWaitMs:
			ms, err := strconv.Atoi(value)
			if err != nil || ms <= 0 {
				return nil, fmt.Errorf("%w: %s=%q", ErrInvalidSetting, key, value)
			}
			opts = append(opts, kafka.WithFetchMaxWait(time.Duration(ms)*time.Millisecond))

		default:
			l.Warn("Ignoring unsupported kafka property", "key", key)
		}
	}

	return opts, nil
}

func parseResetPolicy(v string) (kafka.ResetPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "earliest", "smallest":
		return kafka.ResetEarliest, nil
	case "latest", "largest":
		return kafka.ResetLatest, nil
	default:
		return "", fmt.Errorf("%w: %s=%q", ErrInvalidSetting, PropAutoOffsetReset, v)
	}
}
