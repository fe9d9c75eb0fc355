// Package shortcode generates the human-readable reference codes attached to
// submissions, such as "K7PX2Q".
package shortcode

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"

	"github.com/c360/formflow/errors"
	"github.com/c360/formflow/submission"
)

// CodeType selects the characters a code is drawn from
type CodeType string

// Code types
const (
	Alphanumeric CodeType = "alphanumeric"
	Alpha        CodeType = "alpha"
	Numeric      CodeType = "numeric"
)

// CreationPoint selects when a submission receives its code
type CreationPoint string

// Creation points
const (
	AtCreation   CreationPoint = "creation"
	AtSubmission CreationPoint = "submission"
)

// Defaults
const (
	DefaultCodeLength  = 6
	DefaultMaxAttempts = 100
)

const (
	letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	digits  = "0123456789"
)

// Config is the short code policy of one flow
type Config struct {
	CodeLength    int           `json:"code_length,omitempty"`
	CodeType      CodeType      `json:"code_type,omitempty"`
	Uppercase     *bool         `json:"uppercase,omitempty"`
	CreationPoint CreationPoint `json:"creation_point,omitempty"`
	Prefix        string        `json:"prefix,omitempty"`
	Suffix        string        `json:"suffix,omitempty"`
}

// WithDefaults fills unset fields: length 6, alphanumeric, uppercase, at
// submission.
func (c Config) WithDefaults() Config {
	if c.CodeLength <= 0 {
		c.CodeLength = DefaultCodeLength
	}
	if c.CodeType == "" {
		c.CodeType = Alphanumeric
	}
	if c.Uppercase == nil {
		upper := true
		c.Uppercase = &upper
	}
	if c.CreationPoint == "" {
		c.CreationPoint = AtSubmission
	}
	return c
}

// Validate checks the enumerated fields
func (c Config) Validate() error {
	switch c.CodeType {
	case "", Alphanumeric, Alpha, Numeric:
	default:
		return errors.WrapInvalid(fmt.Errorf("unknown code type %q", c.CodeType), "ShortCodeConfig", "Validate",
			"code type check")
	}
	switch c.CreationPoint {
	case "", AtCreation, AtSubmission:
	default:
		return errors.WrapInvalid(fmt.Errorf("unknown creation point %q", c.CreationPoint), "ShortCodeConfig",
			"Validate", "creation point check")
	}
	return nil
}

// CreateAtCreation reports whether codes are assigned when a submission is
// first saved
func (c Config) CreateAtCreation() bool {
	return c.WithDefaults().CreationPoint == AtCreation
}

// CreateAtSubmission reports whether codes are assigned when a submission
// is finalized
func (c Config) CreateAtSubmission() bool {
	return c.WithDefaults().CreationPoint == AtSubmission
}

func (c Config) alphabet() string {
	switch c.CodeType {
	case Alpha:
		return letters
	case Numeric:
		return digits
	default:
		return letters + digits
	}
}

// Checker reports whether a code is already assigned to a submission
type Checker interface {
	ShortCodeExists(ctx context.Context, code string) (bool, error)
}

// Generator assigns unique codes to submissions according to per-flow
// configuration. Flows without configuration never receive a code.
type Generator struct {
	configs     map[string]Config
	checker     Checker
	logger      *slog.Logger
	random      io.Reader
	maxAttempts int
}

// Option configures a Generator
type Option func(*Generator)

// WithRandom replaces the randomness source
func WithRandom(r io.Reader) Option {
	return func(g *Generator) { g.random = r }
}

// WithMaxAttempts bounds the number of collisions tolerated per code
func WithMaxAttempts(n int) Option {
	return func(g *Generator) { g.maxAttempts = n }
}

// NewGenerator creates a Generator for the given per-flow configuration
func NewGenerator(configs map[string]Config, checker Checker, logger *slog.Logger, opts ...Option) (*Generator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Generator{
		configs:     make(map[string]Config, len(configs)),
		checker:     checker,
		logger:      logger,
		random:      rand.Reader,
		maxAttempts: DefaultMaxAttempts,
	}
	for flow, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		g.configs[flow] = cfg.WithDefaults()
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Config returns the configuration of flow
func (g *Generator) Config(flow string) (Config, bool) {
	cfg, ok := g.configs[flow]
	return cfg, ok
}

// Ensure assigns a code to sub unless it already has one or its flow has no
// configuration. Codes already used by another submission are redrawn. It
// reports whether a code was assigned.
func (g *Generator) Ensure(ctx context.Context, sub *submission.Submission) (bool, error) {
	if sub.ShortCode != "" {
		g.logger.Debug("short code already assigned", "submission_id", sub.ID)
		return false, nil
	}
	cfg, ok := g.configs[sub.Flow]
	if !ok {
		g.logger.Error("no short code configuration for flow", "flow", sub.Flow)
		return false, nil
	}

	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		code, err := g.Generate(cfg)
		if err != nil {
			return false, err
		}
		exists := false
		if g.checker != nil {
			exists, err = g.checker.ShortCodeExists(ctx, code)
			if err != nil {
				return false, errors.WrapTransient(err, "ShortCodeGenerator", "Ensure", "uniqueness check")
			}
		}
		if !exists {
			sub.ShortCode = code
			g.logger.Info("assigned short code", "flow", sub.Flow, "submission_id", sub.ID)
			return true, nil
		}
		g.logger.Warn("short code already exists", "code", code)
	}
	return false, errors.WrapTransient(errors.ErrConflict, "ShortCodeGenerator", "Ensure",
		fmt.Sprintf("unique code after %d attempts", g.maxAttempts))
}

// Generate draws one code for cfg without checking uniqueness
func (g *Generator) Generate(cfg Config) (string, error) {
	cfg = cfg.WithDefaults()
	alphabet := cfg.alphabet()
	limit := big.NewInt(int64(len(alphabet)))

	var b strings.Builder
	b.Grow(len(cfg.Prefix) + cfg.CodeLength + len(cfg.Suffix))
	b.WriteString(cfg.Prefix)

	code := make([]byte, cfg.CodeLength)
	for i := range code {
		n, err := rand.Int(g.random, limit)
		if err != nil {
			return "", errors.WrapTransient(err, "ShortCodeGenerator", "Generate", "read randomness")
		}
		code[i] = alphabet[n.Int64()]
	}
	drawn := string(code)
	if *cfg.Uppercase {
		drawn = strings.ToUpper(drawn)
	}
	b.WriteString(drawn)
	b.WriteString(cfg.Suffix)
	return b.String(), nil
}
