package soap

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func faultResponse(code string) string {
	return fmt.Sprintf(`<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
  <s:Body>
    <s:Fault>
      <detail>
        <UPnPError xmlns="urn:schemas-upnp-org:control-1-0">
          <errorCode>%s</errorCode>
          <errorDescription>boom</errorDescription>
        </UPnPError>
      </detail>
    </s:Fault>
  </s:Body>
</s:Envelope>`, code)
}

// newTestPlayer starts an HTTP server bound to port 1400 on loopback,
// the fixed port ExecuteAction always targets, and returns the loopback
// IP to pass as the device address.
func newTestPlayer(t *testing.T, handler http.HandlerFunc) string {
	listener, err := net.Listen("tcp", "127.0.0.1:1400")
	require.NoError(t, err)

	srv := httptest.NewUnstartedServer(handler)
	srv.Listener.Close()
	srv.Listener = listener
	srv.Start()
	t.Cleanup(srv.Close)

	return "127.0.0.1"
}

func TestExecuteAction_RetriesOnceOnTransientFault(t *testing.T) {
	var calls int32
	ip := newTestPlayer(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(faultResponse("701")))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`<?xml version="1.0"?><s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body><u:PlayResponse/></s:Body></s:Envelope>`))
	})

	client := NewClient(2 * time.Second)
	payload, err := client.ExecuteAction(context.Background(), ip, ServiceAVTransport, "Play", map[string]string{})
	require.NoError(t, err)
	assert.Contains(t, string(payload), "PlayResponse")
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestExecuteAction_DoesNotRetryPermanentFault(t *testing.T) {
	var calls int32
	ip := newTestPlayer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(faultResponse("800")))
	})

	client := NewClient(2 * time.Second)
	_, err := client.ExecuteAction(context.Background(), ip, ServiceAVTransport, "Play", map[string]string{})
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestExecuteAction_RetryExhaustedSurfacesLastError(t *testing.T) {
	var calls int32
	ip := newTestPlayer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(faultResponse("701")))
	})

	client := NewClient(2 * time.Second)
	_, err := client.ExecuteAction(context.Background(), ip, ServiceAVTransport, "Play", map[string]string{})
	require.Error(t, err)
	var rejected *SonosRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "701", rejected.Code)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}
