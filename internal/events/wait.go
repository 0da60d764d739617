package events

import (
	"context"
	"log"
	"time"

	"github.com/playerhub/gateway/internal/player"
	"github.com/playerhub/gateway/internal/topology"
)

// GroupResolver supplies the group-membership and zone snapshot used for
// group-aware wait matching: a wait issued against one room must also wake
// on a NOTIFY from any other player sharing its zone, since a bonded
// secondary or a grouped follower can be the one that actually emits the
// relevant event. Satisfied structurally by *topology.Manager; wired in
// after construction via SetDiscovery to avoid a construction-order cycle
// between the event manager and the topology manager.
type GroupResolver interface {
	MembersOf(uuid string) []string
	GetZones() []topology.Zone
}

// StateTarget describes the condition WaitForState/WaitForAnyState block
// for: either an exact transport-state string or a caller-supplied
// predicate over it.
type StateTarget struct {
	value string
	pred  func(string) bool
}

// StateIs builds a StateTarget matching an exact transport-state value.
func StateIs(state string) StateTarget {
	return StateTarget{value: state}
}

// StateMatches builds a StateTarget matching any transport-state value
// for which pred returns true.
func StateMatches(pred func(string) bool) StateTarget {
	return StateTarget{pred: pred}
}

func (t StateTarget) matches(state string) bool {
	if t.pred != nil {
		return t.pred(state)
	}
	return state == t.value
}

// playerHealth tracks the last NOTIFY timestamp for one registered
// player, backing the health ticker and GetDeviceHealth/
// GetStaleNotifyDevices/GetUnhealthyDevices.
type playerHealth struct {
	UUID        string
	DeviceIP    string
	LastEventAt time.Time
}

// waitKind distinguishes which field transition a stateWaiter cares
// about; only a NOTIFY that changes the matching field wakes it.
type waitKind int

const (
	waitTransport waitKind = iota
	waitVolume
	waitMute
	waitTrack
	waitContent
)

// stateWaiter is a registered blocking call: it wakes the first time a
// NOTIFY from one of uuids changes the field named by kind and the
// resulting DeviceState satisfies predicate.
type stateWaiter struct {
	uuids     map[string]struct{}
	kind      waitKind
	predicate func(*DeviceState) bool
	ch        chan *DeviceState
}

// topoWaiter is a registered blocking call on the next topology change.
type topoWaiter chan []topology.Zone

// trackIdentity is the (uri, title, artist) triple WaitForTrackChange
// compares, deliberately ignoring album-art-URL-only churn.
type trackIdentity struct {
	uri, title, artist string
}

func trackIdentityOf(s *DeviceState) trackIdentity {
	id := trackIdentity{uri: s.CurrentTrackURI}
	if meta := player.ParseDidlMetadata(s.CurrentTrackMetaData, s.CurrentTrackURI); meta != nil {
		id.title = meta.Title
		id.artist = meta.Artist
	}
	return id
}

// groupUUIDs returns the set of normalized UUIDs sharing a zone with
// uuid, uuid included. Without a discovery resolver (not yet wired, or
// the uuid is unknown to topology), the set degrades to just uuid
// itself so callers still work against an ungrouped player.
func (m *Manager) groupUUIDs(uuid string) map[string]struct{} {
	uuid = normalizeUUID(uuid)
	set := map[string]struct{}{uuid: {}}

	m.mu.RLock()
	resolver := m.discovery
	m.mu.RUnlock()
	if resolver == nil {
		return set
	}
	for _, member := range resolver.MembersOf(uuid) {
		set[normalizeUUID(member)] = struct{}{}
	}
	return set
}

// SetDiscovery wires the group-membership resolver used by wait calls.
// Safe to call once after both managers are constructed.
func (m *Manager) SetDiscovery(resolver GroupResolver) {
	m.mu.Lock()
	m.discovery = resolver
	m.mu.Unlock()
}

// Register marks uuid/deviceIP as a player the health tracker should
// watch. Called automatically on successful subscription; safe to call
// repeatedly.
func (m *Manager) Register(uuid, deviceIP string) {
	uuid = normalizeUUID(uuid)
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.registered[uuid]
	if !ok {
		h = &playerHealth{UUID: uuid, LastEventAt: m.now()}
		m.registered[uuid] = h
	}
	h.DeviceIP = deviceIP
}

// Unregister stops health tracking for uuid. When permanent is true the
// cached playback state and history for the device are discarded too
// (used when a player is removed from the household, not just gone
// quiet momentarily).
func (m *Manager) Unregister(uuid string, permanent bool) {
	uuid = normalizeUUID(uuid)
	m.mu.Lock()
	delete(m.registered, uuid)
	m.mu.Unlock()

	if permanent && m.stateCache != nil {
		m.stateCache.RemoveByUDN(uuid)
	}
}

func (m *Manager) markEventReceived(uuid string) {
	uuid = normalizeUUID(uuid)
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.registered[uuid]; ok {
		h.LastEventAt = m.now()
	}
}

// registerWaiter installs w and returns a remover to deregister it
// (called whether the wait wakes naturally or times out).
func (m *Manager) registerWaiter(w *stateWaiter) func() {
	m.waitersMu.Lock()
	m.waiters = append(m.waiters, w)
	m.waitersMu.Unlock()

	return func() {
		m.waitersMu.Lock()
		defer m.waitersMu.Unlock()
		for i, other := range m.waiters {
			if other == w {
				m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
				return
			}
		}
	}
}

// wakeWaiters is called from the NOTIFY path after a state transition.
// uuid is the device that changed; kind names which field changed.
func (m *Manager) wakeWaiters(uuid string, kind waitKind, state *DeviceState) {
	uuid = normalizeUUID(uuid)

	m.waitersMu.Lock()
	var matched []*stateWaiter
	remaining := m.waiters[:0]
	for _, w := range m.waiters {
		if w.kind != kind {
			remaining = append(remaining, w)
			continue
		}
		if _, inGroup := w.uuids[uuid]; !inGroup {
			remaining = append(remaining, w)
			continue
		}
		if !w.predicate(state) {
			remaining = append(remaining, w)
			continue
		}
		matched = append(matched, w)
	}
	m.waiters = remaining
	m.waitersMu.Unlock()

	for _, w := range matched {
		select {
		case w.ch <- state:
		default:
		}
	}
}

func (m *Manager) registerTopoWaiter() (topoWaiter, func()) {
	ch := make(topoWaiter, 1)
	m.topoMu.Lock()
	m.topoWaiters = append(m.topoWaiters, ch)
	m.topoMu.Unlock()

	return ch, func() {
		m.topoMu.Lock()
		defer m.topoMu.Unlock()
		for i, other := range m.topoWaiters {
			if other == ch {
				m.topoWaiters = append(m.topoWaiters[:i], m.topoWaiters[i+1:]...)
				return
			}
		}
	}
}

// broadcastTopologyChange wakes every pending WaitForTopologyChange call
// with the current zone snapshot.
func (m *Manager) broadcastTopologyChange() {
	m.mu.RLock()
	resolver := m.discovery
	m.mu.RUnlock()
	if resolver == nil {
		return
	}
	zones := resolver.GetZones()

	m.topoMu.Lock()
	waiters := m.topoWaiters
	m.topoWaiters = nil
	m.topoMu.Unlock()

	for _, w := range waiters {
		select {
		case w <- zones:
		default:
		}
	}
}

// anyGroupStateMatches reports whether any member of uuids currently
// (per the cache, ignoring TTL) satisfies pred — the fast path every
// wait-for call tries before blocking.
func (m *Manager) anyGroupStateMatches(uuids map[string]struct{}, pred func(*DeviceState) bool) *DeviceState {
	for uuid := range uuids {
		if state := m.stateCache.PeekByUDN(uuid); state != nil && pred(state) {
			return state
		}
	}
	return nil
}

func (m *Manager) waitFor(ctx context.Context, uuid string, kind waitKind, timeout time.Duration, pred func(*DeviceState) bool) (*DeviceState, error) {
	uuids := m.groupUUIDs(uuid)

	if state := m.anyGroupStateMatches(uuids, pred); state != nil {
		return state, nil
	}

	w := &stateWaiter{uuids: uuids, kind: kind, predicate: pred, ch: make(chan *DeviceState, 1)}
	remove := m.registerWaiter(w)
	defer remove()

	// Re-check after installing the waiter: a NOTIFY may have landed
	// between the fast-path check and registration.
	if state := m.anyGroupStateMatches(uuids, pred); state != nil {
		return state, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case state := <-w.ch:
		return state, nil
	case <-timer.C:
		return nil, context.DeadlineExceeded
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WaitForState blocks until any player in uuid's group reports a
// transport state matching target, or timeout elapses.
func (m *Manager) WaitForState(ctx context.Context, uuid string, target StateTarget, timeout time.Duration) (*DeviceState, error) {
	return m.waitFor(ctx, uuid, waitTransport, timeout, func(s *DeviceState) bool {
		return target.matches(s.TransportState)
	})
}

// WaitForStableState blocks until the group's transport state matches
// target and then holds that state for the full quiet period without any
// group member reporting a different transport state, guarding against a transient
// bounce (e.g. a brief TRANSITIONING) being mistaken for settled
// playback.
func (m *Manager) WaitForStableState(ctx context.Context, uuid string, target StateTarget, quiet, timeout time.Duration) (*DeviceState, error) {
	deadline := time.Now().Add(timeout)
	for {
		state, err := m.WaitForState(ctx, uuid, target, time.Until(deadline))
		if err != nil {
			return nil, err
		}

		settleCtx, cancel := context.WithTimeout(ctx, quiet)
		_, waitErr := m.WaitForState(settleCtx, uuid, StateMatches(func(s string) bool { return s != state.TransportState }), quiet)
		cancel()

		if waitErr == context.DeadlineExceeded {
			// Quiet period elapsed with no further transition: settled.
			return state, nil
		}
		if time.Now().After(deadline) {
			return nil, context.DeadlineExceeded
		}
	}
}

// WaitForVolume blocks until any player in uuid's group reports the
// given volume.
func (m *Manager) WaitForVolume(ctx context.Context, uuid string, volume int, timeout time.Duration) (*DeviceState, error) {
	return m.waitFor(ctx, uuid, waitVolume, timeout, func(s *DeviceState) bool {
		return s.Volume == volume
	})
}

// WaitForMute blocks until any player in uuid's group reports the given
// mute state.
func (m *Manager) WaitForMute(ctx context.Context, uuid string, muted bool, timeout time.Duration) (*DeviceState, error) {
	return m.waitFor(ctx, uuid, waitMute, timeout, func(s *DeviceState) bool {
		return s.Muted == muted
	})
}

// WaitForTrackChange blocks until any player in uuid's group reports a
// track identity (uri, title, artist) different from the one observed
// at call time.
func (m *Manager) WaitForTrackChange(ctx context.Context, uuid string, timeout time.Duration) (*DeviceState, error) {
	uuid = normalizeUUID(uuid)
	var baseline trackIdentity
	if state := m.stateCache.PeekByUDN(uuid); state != nil {
		baseline = trackIdentityOf(state)
	}
	return m.waitFor(ctx, uuid, waitTrack, timeout, func(s *DeviceState) bool {
		return trackIdentityOf(s) != baseline
	})
}

// WaitForContentUpdate blocks until any player in uuid's group reports
// an AVTransportURI different from the one observed at call time (a
// queue replacement or a new stream source, as opposed to a mere track
// advance within the same queue).
func (m *Manager) WaitForContentUpdate(ctx context.Context, uuid string, timeout time.Duration) (*DeviceState, error) {
	uuid = normalizeUUID(uuid)
	baseline := ""
	if state := m.stateCache.PeekByUDN(uuid); state != nil {
		baseline = state.AVTransportURI
	}
	return m.waitFor(ctx, uuid, waitContent, timeout, func(s *DeviceState) bool {
		return s.AVTransportURI != baseline
	})
}

// WaitForTopologyChange blocks until the next zone topology change
// broadcast, returning the new zone snapshot.
func (m *Manager) WaitForTopologyChange(ctx context.Context, timeout time.Duration) ([]topology.Zone, error) {
	ch, remove := m.registerTopoWaiter()
	defer remove()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case zones := <-ch:
		return zones, nil
	case <-timer.C:
		return nil, context.DeadlineExceeded
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WaitForAnyState blocks until any player in uuid's group reaches any
// of the given targets, returning the state and the matched target's
// index.
func (m *Manager) WaitForAnyState(ctx context.Context, uuid string, targets []StateTarget, timeout time.Duration) (*DeviceState, int, error) {
	state, err := m.waitFor(ctx, uuid, waitTransport, timeout, func(s *DeviceState) bool {
		for _, t := range targets {
			if t.matches(s.TransportState) {
				return true
			}
		}
		return false
	})
	if err != nil {
		return nil, -1, err
	}
	for i, t := range targets {
		if t.matches(state.TransportState) {
			return state, i, nil
		}
	}
	return state, -1, nil
}

// GetCurrentState returns the live cached transport state for uuid, or
// "" if unknown.
func (m *Manager) GetCurrentState(uuid string) string {
	state := m.stateCache.PeekByUDN(normalizeUUID(uuid))
	if state == nil {
		return ""
	}
	return state.TransportState
}

// GetCurrentMute returns the live cached mute state for uuid, and
// whether anything is known about it at all.
func (m *Manager) GetCurrentMute(uuid string) (muted bool, known bool) {
	state := m.stateCache.PeekByUDN(normalizeUUID(uuid))
	if state == nil {
		return false, false
	}
	return state.Muted, true
}

// healthLoop runs for the life of the manager, evaluating registered
// players against the stale/unhealthy thresholds every minute.
func (m *Manager) healthLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.checkHealth()
		case <-m.stopCh:
			return
		}
	}
}

// checkHealth forces a resubscribe for any player whose last NOTIFY is
// past staleNotifyThreshold — its GENA subscription is likely dead even
// though it hasn't expired yet.
func (m *Manager) checkHealth() {
	for _, stale := range m.GetDeviceHealth() {
		if !stale.Stale {
			continue
		}
		log.Printf("UPNP: %s stale for %s, forcing resubscribe", stale.UUID, time.Since(stale.LastEventAt))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		m.UnsubscribeDevice(ctx, stale.DeviceIP)
		m.SubscribeDevice(ctx, stale.DeviceIP, stale.UUID)
		cancel()
	}
}

// GetDeviceHealth returns a point-in-time health snapshot for every
// registered player.
func (m *Manager) GetDeviceHealth() []DeviceHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	out := make([]DeviceHealth, 0, len(m.registered))
	for _, h := range m.registered {
		age := now.Sub(h.LastEventAt)
		out = append(out, DeviceHealth{
			UUID:        h.UUID,
			DeviceIP:    h.DeviceIP,
			LastEventAt: h.LastEventAt,
			Stale:       age > staleNotifyThreshold,
			Unhealthy:   age > unhealthyThreshold,
		})
	}
	return out
}

// GetStaleNotifyDevices returns registered players whose last NOTIFY is
// older than staleNotifyThreshold (but not yet unhealthy-old).
func (m *Manager) GetStaleNotifyDevices() []DeviceHealth {
	var out []DeviceHealth
	for _, h := range m.GetDeviceHealth() {
		if h.Stale && !h.Unhealthy {
			out = append(out, h)
		}
	}
	return out
}

// GetUnhealthyDevices returns registered players whose last NOTIFY is
// older than unhealthyThreshold.
func (m *Manager) GetUnhealthyDevices() []DeviceHealth {
	var out []DeviceHealth
	for _, h := range m.GetDeviceHealth() {
		if h.Unhealthy {
			out = append(out, h)
		}
	}
	return out
}
