package featureflags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnabled_BooleanValues(t *testing.T) {
	m := NewManager("a=on,b=off,c=true,d=false,e=1,f=0")

	for _, name := range []string{"a", "c", "e"} {
		assert.True(t, m.Enabled(name, 1), name)
	}
	for _, name := range []string{"b", "d", "f", "missing"} {
		assert.False(t, m.Enabled(name, 1), name)
	}
}

func TestEnabled_PercentageValues(t *testing.T) {
	m := NewManager("always=100%,never=0%,canary=25%,broken=abc%")

	assert.True(t, m.Enabled("always", 1))
	assert.False(t, m.Enabled("never", 1))
	assert.False(t, m.Enabled("canary", 0), "percentage rollout requires non-zero userID")
	assert.False(t, m.Enabled("broken", 1))

	first := m.Enabled("canary", 42)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.Enabled("canary", 42), "rollout must be deterministic per user")
	}
}

func TestEnabledDefault(t *testing.T) {
	m := NewManager("conversion_prompts=off,weird=maybe")

	assert.False(t, m.EnabledDefault(ConversionPrompts, 7, true))
	assert.True(t, m.EnabledDefault("unset", 7, true))
	assert.True(t, m.EnabledDefault("weird", 7, true))
	assert.False(t, m.EnabledDefault("weird", 7, false))

	var nilManager *Manager
	assert.True(t, nilManager.EnabledDefault(ConversionPrompts, 7, true))
	assert.False(t, nilManager.Enabled(ConversionPrompts, 7))
}

func TestParseAndSnapshot(t *testing.T) {
	m := NewManager(" bad ,X=on, y = 20% ,z=off,=on,q= ")

	raw := m.Raw()
	assert.Equal(t, map[string]string{"x": "on", "y": "20%", "z": "off"}, raw)
	assert.Equal(t, []string{"x", "y", "z"}, m.Names())

	snap := m.Snapshot(123)
	assert.Len(t, snap, 3)
	assert.True(t, snap["x"])
	assert.False(t, snap["z"])
}
