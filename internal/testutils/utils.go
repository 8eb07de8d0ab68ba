package testutils

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/glassflow/glassflow-cep/internal/embedded"
)

func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   true,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
}

// NewNATSServer starts an embedded JetStream server on a random port that is
// shut down with the test.
func NewNATSServer(t *testing.T) *embedded.NATSServer {
	t.Helper()

	srv, err := embedded.NewNATSServer(NewTestLogger(), -1, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)

	return srv
}
