package obs

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "nonsense")
	logger.Debug().Msg("hidden")
	logger.Info().Str("component", "api").Msg("shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"component":"api"`)
}

func TestSQLOperation(t *testing.T) {
	require.Equal(t, "SELECT", sqlOperation("  select * from invoices"))
	require.Equal(t, "QUERY", sqlOperation(""))
}
