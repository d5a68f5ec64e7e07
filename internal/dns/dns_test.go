package dns

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupIPLiteral(t *testing.T) {
	ip, err := Lookup(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", ip)

	ip, err = Lookup(context.Background(), "[::1]")
	require.NoError(t, err)
	assert.Equal(t, "::1", ip)
}

func TestLookupLocalhost(t *testing.T) {
	ip, err := Lookup(context.Background(), "localhost")
	require.NoError(t, err)
	assert.NotEmpty(t, ip)
}
