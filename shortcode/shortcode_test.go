package shortcode

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/formflow/errors"
	"github.com/c360/formflow/submission"
)

type takenCodes struct {
	taken map[string]bool
	calls int
	all   bool
}

func (c *takenCodes) ShortCodeExists(_ context.Context, code string) (bool, error) {
	c.calls++
	if c.all {
		return true, nil
	}
	if c.taken[code] {
		return true, nil
	}
	c.taken[code] = true
	return false, nil
}

func boolPtr(b bool) *bool { return &b }

func TestGenerator_Generate(t *testing.T) {
	g, err := NewGenerator(nil, nil, nil)
	require.NoError(t, err)

	tests := []struct {
		name    string
		cfg     Config
		pattern string
	}{
		{name: "defaults", cfg: Config{}, pattern: `^[A-Z0-9]{6}$`},
		{name: "numeric", cfg: Config{CodeType: Numeric, CodeLength: 8}, pattern: `^[0-9]{8}$`},
		{name: "alpha lowercase allowed", cfg: Config{CodeType: Alpha, Uppercase: boolPtr(false), CodeLength: 12}, pattern: `^[A-Za-z]{12}$`},
		{name: "prefix and suffix", cfg: Config{Prefix: "UBI-", Suffix: "-X", CodeLength: 4}, pattern: `^UBI-[A-Z0-9]{4}-X$`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 20; i++ {
				code, err := g.Generate(tt.cfg)
				require.NoError(t, err)
				assert.Regexp(t, regexp.MustCompile(tt.pattern), code)
			}
		})
	}
}

func TestGenerator_EnsureIsIdempotent(t *testing.T) {
	checker := &takenCodes{taken: map[string]bool{}}
	g, err := NewGenerator(map[string]Config{"ubi": {}}, checker, nil)
	require.NoError(t, err)

	sub := submission.New("ubi")
	assigned, err := g.Ensure(context.Background(), sub)
	require.NoError(t, err)
	assert.True(t, assigned)
	first := sub.ShortCode
	assert.Len(t, first, DefaultCodeLength)

	assigned, err = g.Ensure(context.Background(), sub)
	require.NoError(t, err)
	assert.False(t, assigned)
	assert.Equal(t, first, sub.ShortCode)
	assert.Equal(t, 1, checker.calls)
}

func TestGenerator_EnsureUnconfiguredFlow(t *testing.T) {
	g, err := NewGenerator(map[string]Config{"ubi": {}}, nil, nil)
	require.NoError(t, err)

	sub := submission.New("docs")
	assigned, err := g.Ensure(context.Background(), sub)
	require.NoError(t, err)
	assert.False(t, assigned)
	assert.Empty(t, sub.ShortCode)
}

func TestGenerator_EnsureGivesUpOnCollisions(t *testing.T) {
	checker := &takenCodes{all: true}
	g, err := NewGenerator(map[string]Config{"ubi": {}}, checker, nil, WithMaxAttempts(3))
	require.NoError(t, err)

	_, err = g.Ensure(context.Background(), submission.New("ubi"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConflict)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, 3, checker.calls)
}

func TestConfig(t *testing.T) {
	cfg := Config{}.WithDefaults()
	assert.Equal(t, DefaultCodeLength, cfg.CodeLength)
	assert.Equal(t, Alphanumeric, cfg.CodeType)
	assert.True(t, *cfg.Uppercase)
	assert.True(t, cfg.CreateAtSubmission())
	assert.False(t, cfg.CreateAtCreation())
	assert.True(t, Config{CreationPoint: AtCreation}.CreateAtCreation())

	_, err := NewGenerator(map[string]Config{"ubi": {CodeType: "emoji"}}, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}
