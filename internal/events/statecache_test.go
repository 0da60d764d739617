package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUUID(t *testing.T) {
	assert.Equal(t, "RINCON_123", normalizeUUID("uuid:RINCON_123"))
	assert.Equal(t, "RINCON_123", normalizeUUID("RINCON_123"))
}

func TestDeviceSubscriptionState_IsFullySubscribed(t *testing.T) {
	s := &DeviceSubscriptionState{Services: map[ServiceType]string{
		ServiceAVTransport: "sid-1",
	}}
	assert.False(t, s.IsFullySubscribed([]ServiceType{ServiceAVTransport, ServiceRenderingControl}))

	s.Services[ServiceRenderingControl] = "sid-2"
	assert.True(t, s.IsFullySubscribed([]ServiceType{ServiceAVTransport, ServiceRenderingControl}))
}

func TestStateCache_UpdateTransport_ReturnsPrevAndAppendsHistory(t *testing.T) {
	c := NewStateCache(time.Minute)

	prev := c.UpdateTransport("10.0.0.1", &AVTransportEvent{TransportState: "PLAYING"})
	assert.Nil(t, prev, "first event has no predecessor")

	prev = c.UpdateTransport("10.0.0.1", &AVTransportEvent{TransportState: "PAUSED_PLAYBACK"})
	require.NotNil(t, prev)
	assert.Equal(t, "PLAYING", prev.TransportState)

	history := c.TransportHistory("10.0.0.1")
	require.Len(t, history, 2)
	assert.Equal(t, "PLAYING", history[0].Value)
	assert.Equal(t, "PAUSED_PLAYBACK", history[1].Value)
}

func TestStateCache_TransportHistory_CapsAtHistorySize(t *testing.T) {
	c := NewStateCache(time.Minute)
	for i := 0; i < historySize+10; i++ {
		c.UpdateTransport("10.0.0.1", &AVTransportEvent{TransportState: "PLAYING"})
	}
	assert.Len(t, c.TransportHistory("10.0.0.1"), historySize)
}

func TestStateCache_GetByUDN_NormalizesPrefix(t *testing.T) {
	c := NewStateCache(time.Minute)
	c.UpdateTransport("10.0.0.1", &AVTransportEvent{TransportState: "PLAYING"})
	c.SetUDN("10.0.0.1", "uuid:RINCON_ABC")

	state := c.GetByUDN("RINCON_ABC")
	require.NotNil(t, state)
	assert.Equal(t, "10.0.0.1", state.DeviceIP)
}

func TestStateCache_PeekByUDN_IgnoresStaleness(t *testing.T) {
	c := NewStateCache(time.Nanosecond)
	c.UpdateTransport("10.0.0.1", &AVTransportEvent{TransportState: "PLAYING"})
	c.SetUDN("10.0.0.1", "RINCON_ABC")
	time.Sleep(time.Millisecond)

	assert.Nil(t, c.GetByUDN("RINCON_ABC"), "GetByUDN must respect TTL")
	assert.NotNil(t, c.PeekByUDN("RINCON_ABC"), "PeekByUDN must ignore TTL")
}

func TestStateCache_RemoveByUDN_DropsStateAndHistory(t *testing.T) {
	c := NewStateCache(time.Minute)
	c.UpdateTransport("10.0.0.1", &AVTransportEvent{TransportState: "PLAYING"})
	c.SetUDN("10.0.0.1", "RINCON_ABC")

	c.RemoveByUDN("RINCON_ABC")

	assert.Nil(t, c.PeekByUDN("RINCON_ABC"))
	assert.Empty(t, c.TransportHistory("10.0.0.1"))
}

func TestStateCache_UpdateVolume_TracksMuteHistory(t *testing.T) {
	c := NewStateCache(time.Minute)
	c.UpdateVolume("10.0.0.1", &RenderingControlEvent{Volume: 20, Muted: false})
	prev := c.UpdateVolume("10.0.0.1", &RenderingControlEvent{Volume: 20, Muted: true})

	require.NotNil(t, prev)
	assert.False(t, prev.Muted)
	history := c.MuteHistory("10.0.0.1")
	require.Len(t, history, 2)
	assert.Equal(t, "false", history[0].Value)
	assert.Equal(t, "true", history[1].Value)
}
