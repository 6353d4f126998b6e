package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Framing names accepted by ParseDSNOptions.
const (
	FramingTerminator = "terminator"
	FramingCopyData   = "copydata"
)

const (
	defaultInitialCapacity = 8 * 1024
	defaultMinRead         = 512
)

// Allocator returns a new zeroed byte slice of length n. It is called for the
// initial stream buffer and on every growth.
type Allocator func(n int) []byte

type Config struct {
	// One of FramingTerminator or FramingCopyData.
	Framing string
	// Row terminator for FramingTerminator. Excluded from delivered rows.
	Terminator []byte
	// Rows longer than this fail with RowTooLarge. Zero means unbounded.
	MaxRowSize int
	InitialCapacity int
	// Smallest free tail the buffer keeps before reading from the source.
	MinRead     int
	NonBlocking bool
	// Deliver trailing bytes without a terminator as a last row instead of
	// failing with a framing violation.
	AllowUnterminatedFinalRow bool
	Allocator                 Allocator

	// Drain retries a non-blocking dispatcher at least this often. Zero uses
	// the default of 100ms.
	PollInterval time.Duration
	// Drain gives up after this long. Zero waits until the context ends.
	DrainTimeout time.Duration
}

func WithDefaults() *Config {
	return &Config{
		Framing:         FramingTerminator,
		Terminator:      []byte("\n"),
		InitialCapacity: defaultInitialCapacity,
		MinRead:         defaultMinRead,
	}
}

func (c *Config) DeepCopy() *Config {
	if c == nil {
		return nil
	}

	var term []byte
	if c.Terminator != nil {
		term = append([]byte{}, c.Terminator...)
	}

	return &Config{
		Framing:                   c.Framing,
		Terminator:                term,
		MaxRowSize:                c.MaxRowSize,
		InitialCapacity:           c.InitialCapacity,
		MinRead:                   c.MinRead,
		NonBlocking:               c.NonBlocking,
		AllowUnterminatedFinalRow: c.AllowUnterminatedFinalRow,
		Allocator:                 c.Allocator,
		PollInterval:              c.PollInterval,
		DrainTimeout:              c.DrainTimeout,
	}
}

// Validate reports the first setting that cannot drive a dispatcher.
func (c *Config) Validate() error {
	switch c.Framing {
	case FramingTerminator:
		if len(c.Terminator) == 0 {
			return errors.New("config: empty row terminator")
		}
	case FramingCopyData:
		if c.AllowUnterminatedFinalRow {
			return errors.New("config: copydata framing has no unterminated final row")
		}
	default:
		return errors.Errorf("config: unknown framing %q", c.Framing)
	}
	if c.MaxRowSize < 0 {
		return errors.Errorf("config: negative max row size %d", c.MaxRowSize)
	}
	if c.InitialCapacity <= 0 {
		return errors.Errorf("config: initial capacity must be positive, got %d", c.InitialCapacity)
	}
	if c.MinRead <= 0 {
		return errors.Errorf("config: min read must be positive, got %d", c.MinRead)
	}
	if c.PollInterval < 0 || c.DrainTimeout < 0 {
		return errors.Errorf("config: negative drain timing %s/%s", c.PollInterval, c.DrainTimeout)
	}
	return nil
}

// ParseDSNOptions applies COPY reader parameters given in URL query form, e.g.
//
//	terminator=%0A&maxRowSize=1048576&nonBlocking=true
//
// on top of the defaults. Unknown parameters are rejected.
func ParseDSNOptions(query string) (*Config, error) {
	cfg := WithDefaults()
	params, err := url.ParseQuery(strings.TrimPrefix(query, "?"))
	if err != nil {
		return nil, errors.Wrap(err, "config: invalid options")
	}

	for k, v := range params {
		if len(v) != 1 {
			return nil, errors.Errorf("config: parameter %s given %d times", k, len(v))
		}
		val := v[0]
		switch k {
		case "framing":
			cfg.Framing = strings.ToLower(val)
		case "terminator":
			cfg.Terminator = []byte(val)
		case "maxRowSize":
			cfg.MaxRowSize, err = parseSize(k, val)
		case "initialCapacity":
			cfg.InitialCapacity, err = parseSize(k, val)
		case "minRead":
			cfg.MinRead, err = parseSize(k, val)
		case "nonBlocking":
			cfg.NonBlocking, err = parseBool(k, val)
		case "allowUnterminated":
			cfg.AllowUnterminatedFinalRow, err = parseBool(k, val)
		case "pollInterval":
			cfg.PollInterval, err = parseDuration(k, val)
		case "drainTimeout":
			cfg.DrainTimeout, err = parseDuration(k, val)
		default:
			return nil, errors.Errorf("config: unknown parameter %s", k)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseSize(name, val string) (int, error) {
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, errors.Wrapf(err, "config: %s param is not an integer", name)
	}
	return n, nil
}

func parseBool(name, val string) (bool, error) {
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, errors.Wrapf(err, "config: %s param is not a boolean", name)
	}
	return b, nil
}

func parseDuration(name, val string) (time.Duration, error) {
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, errors.Wrapf(err, "config: %s param is not a duration", name)
	}
	return d, nil
}

func (c *Config) String() string {
	return fmt.Sprintf("framing=%s terminator=%q maxRowSize=%d initialCapacity=%d nonBlocking=%t",
		c.Framing, c.Terminator, c.MaxRowSize, c.InitialCapacity, c.NonBlocking)
}
