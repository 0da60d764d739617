package router

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/playerhub/gateway/internal/api"
	"github.com/playerhub/gateway/internal/apperrors"
)

// mountGroups wires join/leave/ungroup/isolate/add.
func (rt *Router) mountGroups(root chi.Router) {
	root.Method(http.MethodGet, "/{room}/join/{target}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return rt.join(w, chi.URLParam(r, "room"), chi.URLParam(r, "target"))
	}))
	root.Method(http.MethodGet, "/{room}/add/{other}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return rt.join(w, chi.URLParam(r, "other"), chi.URLParam(r, "room"))
	}))

	root.Method(http.MethodGet, "/{room}/leave", rt.leaveHandler())
	root.Method(http.MethodGet, "/{room}/ungroup", rt.leaveHandler())
	root.Method(http.MethodGet, "/{room}/isolate", rt.leaveHandler())
}

// join performs a group join: make a's coordinator standalone
// (ignoring failure — a may already be standalone), then add it to b's
// group by pointing it at b's coordinator.
func (rt *Router) join(w http.ResponseWriter, roomA, roomB string) error {
	if err := rt.joinRooms(roomA, roomB); err != nil {
		return err
	}
	return api.WriteOK(w)
}

// joinRooms performs the join without writing an HTTP response, so
// callers that issue several joins as part of a larger operation (e.g.
// preset grouping) can run it as one step among many.
func (rt *Router) joinRooms(roomA, roomB string) error {
	deviceA, err := rt.resolveRoom(roomA)
	if err != nil {
		return err
	}
	deviceB, err := rt.resolveRoom(roomB)
	if err != nil {
		return err
	}

	_ = rt.Player.BecomeCoordinatorOfStandaloneGroup(deviceA.IP)

	coordinatorUUID := rt.Topology.CoordinatorOf(deviceB.DeviceID)
	if coordinatorUUID == "" {
		coordinatorUUID = deviceB.DeviceID
	}
	uri := "x-rincon:" + coordinatorUUID
	if err := rt.Player.SetAVTransportURIWithMetadata(deviceA.IP, uri, ""); err != nil {
		return apperrors.NewInternalError("failed to join group: " + err.Error())
	}
	return nil
}

func (rt *Router) leaveHandler() api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		device, err := rt.resolveRoom(chi.URLParam(r, "room"))
		if err != nil {
			return err
		}
		if err := rt.leaveGroup(device); err != nil {
			return err
		}
		return api.WriteOK(w)
	}
}

// pauseOrResumeAllCoordinators backs /pauseall and /resumeAll (wired in
// mountGlobal): act on every
// coordinator in parallel, logging individual failures without
// propagating them to the caller.
func (rt *Router) pauseOrResumeAllCoordinators(play bool) error {
	topo, err := rt.Registry.GetTopology()
	if err != nil {
		return apperrors.NewInternalError("failed to get topology: " + err.Error())
	}

	var wg sync.WaitGroup
	for _, device := range topo.Devices {
		coordinatorUUID := rt.Topology.CoordinatorOf(device.DeviceID)
		if coordinatorUUID != "" && coordinatorUUID != device.DeviceID {
			continue // not a coordinator; skip, its coordinator will be visited separately
		}
		ip := device.IP
		wg.Add(1)
		go func(ip string) {
			defer wg.Done()
			var actionErr error
			if play {
				actionErr = rt.Player.Play(ip)
			} else {
				actionErr = rt.Player.Pause(ip)
			}
			if actionErr != nil {
				rt.logger.Printf("pauseAll/resumeAll: action failed for %s: %v", ip, actionErr)
			}
		}(ip)
	}
	wg.Wait()
	return nil
}
