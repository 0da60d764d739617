package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playerhub/gateway/internal/player"
	"github.com/playerhub/gateway/internal/player/soap"
)

func TestProcessEvent_WakesWaitForStateOnTransportChange(t *testing.T) {
	m := newTestManager()
	m.stateCache.UpdateTransport("10.0.0.1", &AVTransportEvent{TransportState: "STOPPED"})
	m.stateCache.SetUDN("10.0.0.1", "RINCON_A")

	done := make(chan error, 1)
	go func() {
		_, err := m.WaitForState(context.Background(), "RINCON_A", StateIs("PLAYING"), time.Second)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)

	m.processEvent(&NotifyEvent{
		ServiceType: ServiceAVTransport,
		Properties:  map[string]string{"TransportState": "PLAYING"},
	}, "10.0.0.1", "RINCON_A")

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("processEvent did not wake the pending WaitForState call")
	}
}

func TestProcessEvent_ZoneTopologyBroadcastsAndInvalidatesCache(t *testing.T) {
	m := newTestManager()
	m.SetDiscovery(&fakeResolver{})
	m.zoneCache = player.NewZoneGroupCache(time.Minute)
	m.zoneCache.Set(&soap.ZoneGroupState{})

	done := make(chan struct{}, 1)
	go func() {
		_, _ = m.WaitForTopologyChange(context.Background(), time.Second)
		done <- struct{}{}
	}()
	time.Sleep(20 * time.Millisecond)

	m.processEvent(&NotifyEvent{ServiceType: ServiceZoneGroupTopology}, "10.0.0.1", "")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("processEvent did not broadcast the topology change")
	}
	assert.Nil(t, m.zoneCache.Get(), "topology change must invalidate the zone cache")
}

func TestHandleNotify_UnknownSIDIsIgnored(t *testing.T) {
	m := newTestManager()
	before := m.Stats()
	m.handleNotify("sid-does-not-exist", 1, ServiceAVTransport, "10.0.0.1", []byte("<e:propertyset/>"))
	after := m.Stats()
	require.Equal(t, before.EventsProcessed, after.EventsProcessed, "unknown SID must not be processed")
}
