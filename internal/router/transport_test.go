package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyVolumeDelta_Absolute(t *testing.T) {
	got, err := applyVolumeDelta(20, "55")
	require.NoError(t, err)
	assert.Equal(t, 55, got)
}

func TestApplyVolumeDelta_RelativeClampsToRange(t *testing.T) {
	got, err := applyVolumeDelta(95, "+20")
	require.NoError(t, err)
	assert.Equal(t, 100, got, "delta past 100 clamps")

	got, err = applyVolumeDelta(5, "-20")
	require.NoError(t, err)
	assert.Equal(t, 0, got, "delta below 0 clamps")
}

func TestApplyVolumeDelta_InvalidSpec(t *testing.T) {
	_, err := applyVolumeDelta(10, "loud")
	assert.Error(t, err)
}

func TestDecodePlayMode(t *testing.T) {
	assert.Equal(t, playMode{}, decodePlayMode("NORMAL"))
	assert.Equal(t, playMode{Repeat: true}, decodePlayMode("REPEAT_ALL"))
	assert.Equal(t, playMode{Repeat: true}, decodePlayMode("REPEAT_ONE"))
	assert.Equal(t, playMode{Repeat: true, Shuffle: true}, decodePlayMode("SHUFFLE"))
	assert.Equal(t, playMode{Shuffle: true}, decodePlayMode("SHUFFLE_NOREPEAT"))
	assert.Equal(t, playMode{}, decodePlayMode("garbage"))
}

func TestPlayModeEncode(t *testing.T) {
	assert.Equal(t, "NORMAL", playMode{}.encode())
	assert.Equal(t, "REPEAT_ALL", playMode{Repeat: true}.encode())
	assert.Equal(t, "SHUFFLE_NOREPEAT", playMode{Shuffle: true}.encode())
	assert.Equal(t, "SHUFFLE", playMode{Repeat: true, Shuffle: true}.encode())
}

func TestFormatHMS(t *testing.T) {
	assert.Equal(t, "00:00:00", formatHMS(0))
	assert.Equal(t, "00:01:05", formatHMS(65))
	assert.Equal(t, "01:00:00", formatHMS(3600))
	assert.Equal(t, "25:00:01", formatHMS(90001))
}
