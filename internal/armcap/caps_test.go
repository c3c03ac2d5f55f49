package armcap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapsHas(t *testing.T) {
	assert.True(t, RNG.Has(RNG))
	assert.True(t, Caps(0x1ff).Has(RNG))
	assert.False(t, Caps(0xff).Has(RNG))
	assert.True(t, Caps(0).Has(0))
}

func TestCapsString(t *testing.T) {
	tests := []struct {
		caps     Caps
		expected string
	}{
		{0, "0x0 (none)"},
		{RNG, "0x100 (rng)"},
		{RNG | 0x3, "0x103 (rng,other=0x3)"},
		{0x7, "0x7 (other=0x7)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.caps.String())
		})
	}
}

func TestMethodString(t *testing.T) {
	assert.Equal(t, "override", MethodOverride.String())
	assert.Equal(t, "hwcap", MethodHWCap.String())
	assert.Equal(t, "probe", MethodProbe.String())
	assert.Equal(t, "unsupported", MethodUnsupported.String())
	assert.Equal(t, "none", MethodNone.String())
	assert.Equal(t, "none", Method(42).String())
}
