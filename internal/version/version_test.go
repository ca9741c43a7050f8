package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })

	Version = "1.2.3"
	assert.Equal(t, "stereorect 1.2.3 (commit unknown, built unknown)", String())
}
