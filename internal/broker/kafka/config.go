package kafka

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/glizzus/kafka-connector/internal/schedule"
	"github.com/glizzus/kafka-connector/internal/util"
)

// ConfigurationError reports an invalid client configuration.
type ConfigurationError = schedule.ConfigurationError

// ConfigMap holds client properties using librdkafka names, so existing
// property files keep working.
type ConfigMap map[string]string

// DefaultProducerConfig is merged under every producer ConfigMap.
var DefaultProducerConfig = ConfigMap{
	"log_level":                    "0",
	"api.version.request":          "true",
	"queue.buffering.max.messages": "100000",
	"queue.buffering.max.ms":       "10",
	"message.send.max.retries":     "200",
}

// DefaultConsumerConfig is merged under every consumer ConfigMap.
var DefaultConsumerConfig = ConfigMap{
	"log_level":           "0",
	"api.version.request": "true",
}

// debugLogLevel is the syslog level from which client debug output is logged.
const debugLogLevel = 7

type producerSettings struct {
	maxQueued    int
	batchTimeout time.Duration
	maxAttempts  int
	compression  kafka.Compression
	requiredAcks kafka.RequiredAcks
	clientID     string
	debug        bool
}

type consumerSettings struct {
	minBytes    int
	maxBytes    int
	maxWait     time.Duration
	startOffset int64
	clientID    string
	debug       bool
}

// ParseBootstrapServers splits a comma separated broker list.
func ParseBootstrapServers(csv string) ([]string, error) {
	var out []string
	for _, s := range strings.Split(csv, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, &ConfigurationError{Field: "bootstrap.servers", Reason: "no brokers given"}
	}
	return out, nil
}

func parseProducerConfig(user ConfigMap) (producerSettings, error) {
	cfg := util.Merge(DefaultProducerConfig, user)
	s := producerSettings{requiredAcks: kafka.RequireAll}
	p := propertyParser{cfg: cfg}

	s.maxQueued = p.int("queue.buffering.max.messages", 1)
	s.batchTimeout = p.millis("queue.buffering.max.ms")
	s.maxAttempts = p.int("message.send.max.retries", 0) + 1
	s.debug = p.int("log_level", 0) >= debugLogLevel
	p.bool("api.version.request")
	s.clientID = cfg["client.id"]

	if raw, ok := cfg["compression.codec"]; ok {
		c, err := parseCompression(raw)
		if err != nil {
			p.fail("compression.codec", err.Error())
		}
		s.compression = c
	}
	if raw, ok := cfg["acks"]; ok {
		switch raw {
		case "all", "-1":
			s.requiredAcks = kafka.RequireAll
		case "1":
			s.requiredAcks = kafka.RequireOne
		case "0":
			s.requiredAcks = kafka.RequireNone
		default:
			p.fail("acks", fmt.Sprintf("unsupported value %q", raw))
		}
	}

	p.rejectUnknown("log_level", "api.version.request", "queue.buffering.max.messages",
		"queue.buffering.max.ms", "message.send.max.retries", "compression.codec", "acks", "client.id")
	return s, p.err
}

func parseConsumerConfig(user ConfigMap) (consumerSettings, error) {
	cfg := util.Merge(DefaultConsumerConfig, user)
	s := consumerSettings{startOffset: kafka.FirstOffset}
	p := propertyParser{cfg: cfg}

	if _, ok := cfg["fetch.min.bytes"]; ok {
		s.minBytes = p.int("fetch.min.bytes", 1)
	}
	if _, ok := cfg["fetch.max.bytes"]; ok {
		s.maxBytes = p.int("fetch.max.bytes", 1)
	}
	if _, ok := cfg["fetch.wait.max.ms"]; ok {
		s.maxWait = p.millis("fetch.wait.max.ms")
	}
	s.debug = p.int("log_level", 0) >= debugLogLevel
	p.bool("api.version.request")
	s.clientID = cfg["client.id"]

	if raw, ok := cfg["auto.offset.reset"]; ok {
		switch raw {
		case "earliest", "smallest", "beginning":
			s.startOffset = kafka.FirstOffset
		case "latest", "largest", "end":
			s.startOffset = kafka.LastOffset
		default:
			p.fail("auto.offset.reset", fmt.Sprintf("unsupported value %q", raw))
		}
	}

	p.rejectUnknown("log_level", "api.version.request", "fetch.min.bytes", "fetch.max.bytes",
		"fetch.wait.max.ms", "auto.offset.reset", "client.id")
	return s, p.err
}

type codecName struct {
	name  string
	codec kafka.Compression
}

var compressionCodecs = []codecName{
	{"none", 0},
	{"gzip", kafka.Gzip},
	{"snappy", kafka.Snappy},
	{"lz4", kafka.Lz4},
	{"zstd", kafka.Zstd},
}

func parseCompression(raw string) (kafka.Compression, error) {
	c, ok := util.FindFirst(compressionCodecs, func(c codecName) bool { return c.name == strings.ToLower(raw) })
	if !ok {
		return 0, fmt.Errorf("unsupported codec %q", raw)
	}
	return c.codec, nil
}

// propertyParser keeps the first error so callers can parse every
// property and check once.
type propertyParser struct {
	cfg ConfigMap
	err error
}

func (p *propertyParser) fail(key, reason string) {
	if p.err == nil {
		p.err = &ConfigurationError{Field: key, Reason: reason}
	}
}

func (p *propertyParser) int(key string, lowest int) int {
	raw := p.cfg[key]
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, fmt.Sprintf("expected an integer, got %q", raw))
		return 0
	}
	if n < lowest {
		p.fail(key, fmt.Sprintf("must be at least %d, got %d", lowest, n))
	}
	return n
}

func (p *propertyParser) millis(key string) time.Duration {
	return time.Duration(p.int(key, 0)) * time.Millisecond
}

func (p *propertyParser) bool(key string) bool {
	raw := p.cfg[key]
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, fmt.Sprintf("expected a boolean, got %q", raw))
	}
	return b
}

func (p *propertyParser) rejectUnknown(known ...string) {
	for _, key := range util.SortedKeys(p.cfg) {
		if !slices.Contains(known, key) {
			p.fail(key, "unknown property")
		}
	}
}
