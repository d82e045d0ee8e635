package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dxta-dev/clankers/internal/paths"
)

func TestExportPathFlags(t *testing.T) {
	t.Setenv("CLANKERS_DATA_PATH", "")
	t.Setenv("CLANKERS_DB_PATH", "")
	t.Setenv("CLANKERS_SOCKET_PATH", "")

	exportPathFlags("/tmp/data", "/tmp/data/clankers.db", "/tmp/run/c.sock")

	assert.Equal(t, "/tmp/data", os.Getenv("CLANKERS_DATA_PATH"))
	assert.Equal(t, "/tmp/data/clankers.db", os.Getenv("CLANKERS_DB_PATH"))
	assert.Equal(t, "/tmp/run/c.sock", os.Getenv("CLANKERS_SOCKET_PATH"))

	// Resolution must agree with what the flag asked for.
	assert.Equal(t, "/tmp/run/c.sock", paths.SocketPath())
	assert.Equal(t, "/tmp/data/clankers.db", paths.DBPath())
}

func TestExportPathFlagsEmptyLeavesEnvAlone(t *testing.T) {
	t.Setenv("CLANKERS_SOCKET_PATH", "/preset/s.sock")

	exportPathFlags("", "", "")

	assert.Equal(t, "/preset/s.sock", os.Getenv("CLANKERS_SOCKET_PATH"))
}
