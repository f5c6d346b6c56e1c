package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubject_IsNamespacedPerTicker(t *testing.T) {
	assert.Equal(t, "consensus.events.ABC", Subject("ABC"))
	assert.Equal(t, "consensus.events.XYZ", Subject("XYZ"))
}

func TestDefaultConfig_UsesConventionalLocalURL(t *testing.T) {
	cfg := DefaultConfig()
	assert.NotEmpty(t, cfg.URL)
}
