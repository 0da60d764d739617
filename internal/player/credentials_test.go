package player

import (
	"testing"
	"time"

	"github.com/playerhub/gateway/internal/player/soap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExtractor() *CredentialExtractor {
	return NewCredentialExtractor(nil, 5*time.Second, nil)
}

func TestExtractFromItem_DetectsSpotifyBySID(t *testing.T) {
	e := newExtractor()
	item := soap.FavoriteItem{
		Resource:         "x-sonosapi-radio:spotify:station:foo?sid=12&sn=1",
		ResourceMetaData: `<desc>SA_RINCON1234_X_#Svc12-abcdef0123456789-Token</desc>`,
	}
	creds := e.extractFromItem(item)
	require.NotNil(t, creds)
	assert.Equal(t, ServiceSpotify, creds.Service)
	assert.Equal(t, "12", creds.SID)
	assert.Equal(t, "abcdef0123456789", creds.SessionSuffix)
}

func TestExtractFromItem_NoCredentialWithoutSIDOrToken(t *testing.T) {
	e := newExtractor()
	item := soap.FavoriteItem{Resource: "x-rincon:RINCON_000E58ABC12301400"}
	assert.Nil(t, e.extractFromItem(item))
}

func TestGetServiceStatus_AmazonMusicNeverSupported(t *testing.T) {
	e := newExtractor()
	assert.Equal(t, StatusNotSupported, e.GetServiceStatus(ServiceAmazonMusic))
}

func TestGetServiceStatus_ReadyAfterCache(t *testing.T) {
	e := newExtractor()
	e.cacheCredentials(ServiceSpotify, &ServiceCredentials{Service: ServiceSpotify, SID: "12"})
	assert.Equal(t, StatusReady, e.GetServiceStatus(ServiceSpotify))
}

func TestGetServiceStatus_NeedsBootstrapWhenUncached(t *testing.T) {
	e := newExtractor()
	assert.Equal(t, StatusNeedsBootstrap, e.GetServiceStatus(ServiceSpotify))
}

func TestCacheTTLExpiry(t *testing.T) {
	e := newExtractor()
	e.SetCacheTTL(1 * time.Millisecond)
	e.cacheCredentials(ServiceSpotify, &ServiceCredentials{Service: ServiceSpotify})
	time.Sleep(5 * time.Millisecond)
	assert.False(t, e.IsCacheValid(ServiceSpotify))
}

func TestClearCache_SingleService(t *testing.T) {
	e := newExtractor()
	e.cacheCredentials(ServiceSpotify, &ServiceCredentials{Service: ServiceSpotify})
	e.ClearCache()
	assert.False(t, e.IsCacheValid(ServiceSpotify))
}
