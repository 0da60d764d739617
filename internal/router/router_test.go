package router

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/playerhub/gateway/internal/player/soap"
)

func TestParseOnOff(t *testing.T) {
	cases := []struct {
		input  string
		want   bool
		wantOK bool
	}{
		{"on", true, true},
		{"ON", true, true},
		{"true", true, true},
		{"1", true, true},
		{"off", false, true},
		{"false", false, true},
		{"0", false, true},
		{"sideways", false, false},
		{"", false, false},
	}
	for _, tc := range cases {
		got, ok := parseOnOff(tc.input)
		assert.Equal(t, tc.wantOK, ok, "input %q", tc.input)
		if tc.wantOK {
			assert.Equal(t, tc.want, got, "input %q", tc.input)
		}
	}
}

func TestIsBondedPairFault(t *testing.T) {
	assert.False(t, isBondedPairFault(nil))
	assert.False(t, isBondedPairFault(errors.New("boom")))
	assert.True(t, isBondedPairFault(&soap.SonosRejectedError{Action: "BecomeCoordinatorOfStandaloneGroup", Code: "701"}))
	assert.True(t, isBondedPairFault(&soap.SonosRejectedError{Action: "BecomeCoordinatorOfStandaloneGroup", Code: "1023"}))
	assert.False(t, isBondedPairFault(&soap.SonosRejectedError{Action: "BecomeCoordinatorOfStandaloneGroup", Code: "402"}))
}
