package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummary(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = origVersion, origCommit, origDate })

	Version, Commit, Date = "v1.2.0", "abc123", "2026-10-01"
	assert.Equal(t, "v1.2.0 (abc123 2026-10-01)", Summary())

	Commit = ""
	assert.Equal(t, "v1.2.0 (2026-10-01)", Summary())

	Version, Date = "", ""
	assert.NotEmpty(t, Summary(), "falls back to the module version")
}
