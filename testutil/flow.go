package testutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/c360/formflow/flowconfig"
)

// MustRegistry parses one or more YAML flow documents into a registry
func MustRegistry(tb testing.TB, yaml string) *flowconfig.Registry {
	tb.Helper()
	flows, err := flowconfig.Parse(strings.NewReader(yaml))
	require.NoError(tb, err)
	registry, err := flowconfig.NewRegistry(flows)
	require.NoError(tb, err)
	return registry
}
