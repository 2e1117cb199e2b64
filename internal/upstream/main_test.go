package upstream_test

import (
	"log/slog"
	"os"
	"testing"

	"github.com/kagenti/mcp-gateway/internal/tests/server2"
)

// stdioServerEnvVar makes this same test binary double as the stdio test
// server subprocess stdio_test.go spawns: re-exec itself with the var set,
// a standard Go idiom for exercising a client against its own binary
// without a separate build step.
const stdioServerEnvVar = "MCP_GATEWAY_TEST_STDIO_SERVER"

func TestMain(m *testing.M) {
	if os.Getenv(stdioServerEnvVar) == "1" {
		start, _, err := server2.RunServer("stdio", "")
		if err != nil {
			slog.Error("failed to start stdio test server", "error", err)
			os.Exit(1)
		}
		// The parent closing stdin to end the session surfaces here as an
		// error; that is the normal way this subprocess is told to stop.
		if err := start(); err != nil {
			slog.Info("stdio test server stopped", "reason", err)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}
