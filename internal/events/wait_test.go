package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playerhub/gateway/internal/topology"
)

func newTestManager() *Manager {
	cfg := DefaultManagerConfig()
	cfg.StateCacheTTL = time.Minute
	return NewManager(cfg, 0, nil)
}

// fakeResolver is a minimal GroupResolver for testing group-aware
// matching without a real topology.Manager.
type fakeResolver struct {
	groups map[string][]string
	zones  []topology.Zone
}

func (f *fakeResolver) MembersOf(uuid string) []string { return f.groups[uuid] }
func (f *fakeResolver) GetZones() []topology.Zone       { return f.zones }

func TestWaitForState_FastPathReturnsImmediately(t *testing.T) {
	m := newTestManager()
	m.stateCache.UpdateTransport("10.0.0.1", &AVTransportEvent{TransportState: "PLAYING"})
	m.stateCache.SetUDN("10.0.0.1", "RINCON_A")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	state, err := m.WaitForState(ctx, "RINCON_A", StateIs("PLAYING"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "PLAYING", state.TransportState)
}

func TestWaitForState_TimesOutWhenConditionNeverMet(t *testing.T) {
	m := newTestManager()
	m.stateCache.UpdateTransport("10.0.0.1", &AVTransportEvent{TransportState: "STOPPED"})
	m.stateCache.SetUDN("10.0.0.1", "RINCON_A")

	ctx := context.Background()
	_, err := m.WaitForState(ctx, "RINCON_A", StateIs("PLAYING"), 20*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForState_WakesOnMatchingNotify(t *testing.T) {
	m := newTestManager()
	m.stateCache.UpdateTransport("10.0.0.1", &AVTransportEvent{TransportState: "STOPPED"})
	m.stateCache.SetUDN("10.0.0.1", "RINCON_A")

	done := make(chan *DeviceState, 1)
	go func() {
		state, err := m.WaitForState(context.Background(), "RINCON_A", StateIs("PLAYING"), time.Second)
		assert.NoError(t, err)
		done <- state
	}()

	time.Sleep(20 * time.Millisecond) // let the waiter install
	m.stateCache.UpdateTransport("10.0.0.1", &AVTransportEvent{TransportState: "PLAYING"})
	state := m.stateCache.PeekByUDN("RINCON_A")
	m.wakeWaiters("RINCON_A", waitTransport, state)

	select {
	case got := <-done:
		assert.Equal(t, "PLAYING", got.TransportState)
	case <-time.After(time.Second):
		t.Fatal("WaitForState did not wake on matching notify")
	}
}

func TestWaitForState_GroupAwareMatchesOtherMember(t *testing.T) {
	m := newTestManager()
	m.SetDiscovery(&fakeResolver{groups: map[string][]string{
		"RINCON_A": {"RINCON_A", "RINCON_B"},
	}})

	m.stateCache.UpdateTransport("10.0.0.2", &AVTransportEvent{TransportState: "PLAYING"})
	m.stateCache.SetUDN("10.0.0.2", "RINCON_B")

	// Querying RINCON_A's group should see RINCON_B's state.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	state, err := m.WaitForState(ctx, "RINCON_A", StateIs("PLAYING"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "RINCON_B", state.DeviceUDN)
}

func TestWaitForVolume_And_WaitForMute(t *testing.T) {
	m := newTestManager()
	m.stateCache.UpdateVolume("10.0.0.1", &RenderingControlEvent{Volume: 10, Muted: false})
	m.stateCache.SetUDN("10.0.0.1", "RINCON_A")

	ctx := context.Background()
	state, err := m.WaitForVolume(ctx, "RINCON_A", 10, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 10, state.Volume)

	_, err = m.WaitForMute(ctx, "RINCON_A", true, 20*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForTrackChange_IgnoresAlbumArtOnlyChurn(t *testing.T) {
	m := newTestManager()
	didl := func(art string) string {
		return `<DIDL-Lite xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/"><item><dc:title>Song</dc:title><dc:creator>Band</dc:creator><upnp:albumArtURI>` + art + `</upnp:albumArtURI></item></DIDL-Lite>`
	}
	m.stateCache.UpdateTransport("10.0.0.1", &AVTransportEvent{
		TransportState:       "PLAYING",
		CurrentTrackURI:      "x-sonos:track1",
		CurrentTrackMetaData: didl("/art/1.jpg"),
	})
	m.stateCache.SetUDN("10.0.0.1", "RINCON_A")

	// Same URI, title and artist with only the album-art URL changed
	// should not count as a track change even though an update occurs.
	go func() {
		time.Sleep(5 * time.Millisecond)
		m.processEvent(&NotifyEvent{
			ServiceType: ServiceAVTransport,
			Properties: map[string]string{
				"TransportState":       "PLAYING",
				"CurrentTrackURI":      "x-sonos:track1",
				"CurrentTrackMetaData": didl("/art/2.jpg"),
			},
		}, "10.0.0.1", "RINCON_A")
	}()
	ctx := context.Background()
	_, err := m.WaitForTrackChange(ctx, "RINCON_A", 50*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGetCurrentState_And_GetCurrentMute(t *testing.T) {
	m := newTestManager()
	assert.Equal(t, "", m.GetCurrentState("RINCON_UNKNOWN"))
	_, known := m.GetCurrentMute("RINCON_UNKNOWN")
	assert.False(t, known)

	m.stateCache.UpdateTransport("10.0.0.1", &AVTransportEvent{TransportState: "PLAYING"})
	m.stateCache.UpdateVolume("10.0.0.1", &RenderingControlEvent{Volume: 5, Muted: true})
	m.stateCache.SetUDN("10.0.0.1", "RINCON_A")

	assert.Equal(t, "PLAYING", m.GetCurrentState("RINCON_A"))
	muted, known := m.GetCurrentMute("RINCON_A")
	assert.True(t, known)
	assert.True(t, muted)
}

func TestDeviceHealth_ClassifiesStaleAndUnhealthy(t *testing.T) {
	m := newTestManager()
	now := time.Now()
	m.now = func() time.Time { return now }

	m.Register("RINCON_FRESH", "10.0.0.1")
	m.Register("RINCON_STALE", "10.0.0.2")
	m.Register("RINCON_DEAD", "10.0.0.3")

	m.registered["RINCON_STALE"].LastEventAt = now.Add(-(staleNotifyThreshold + time.Second))
	m.registered["RINCON_DEAD"].LastEventAt = now.Add(-(unhealthyThreshold + time.Second))

	stale := m.GetStaleNotifyDevices()
	require.Len(t, stale, 1)
	assert.Equal(t, "RINCON_STALE", stale[0].UUID)

	unhealthy := m.GetUnhealthyDevices()
	require.Len(t, unhealthy, 1)
	assert.Equal(t, "RINCON_DEAD", unhealthy[0].UUID)

	all := m.GetDeviceHealth()
	assert.Len(t, all, 3)
}

func TestUnregister_Permanent_ClearsCachedState(t *testing.T) {
	m := newTestManager()
	m.stateCache.UpdateTransport("10.0.0.1", &AVTransportEvent{TransportState: "PLAYING"})
	m.stateCache.SetUDN("10.0.0.1", "RINCON_A")
	m.Register("RINCON_A", "10.0.0.1")

	m.Unregister("RINCON_A", true)

	assert.Nil(t, m.stateCache.PeekByUDN("RINCON_A"))
	assert.Empty(t, m.GetDeviceHealth())
}

func TestWaitForTopologyChange_WakesOnBroadcast(t *testing.T) {
	m := newTestManager()
	zones := []topology.Zone{{ID: "RINCON_A", Coordinator: "RINCON_A"}}
	m.SetDiscovery(&fakeResolver{zones: zones})

	done := make(chan []topology.Zone, 1)
	go func() {
		got, err := m.WaitForTopologyChange(context.Background(), time.Second)
		assert.NoError(t, err)
		done <- got
	}()

	time.Sleep(20 * time.Millisecond)
	m.broadcastTopologyChange()

	select {
	case got := <-done:
		require.Len(t, got, 1)
		assert.Equal(t, "RINCON_A", got[0].ID)
	case <-time.After(time.Second):
		t.Fatal("WaitForTopologyChange did not wake on broadcast")
	}
}
