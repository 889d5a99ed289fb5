package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestHandlerExposesMetrics(t *testing.T) {
	SetRelayRooms(3)
	RecordSave(false)
	RecordAPIRequest("GET", 0, time.Millisecond)
	RecordAPIRequest("PUT", 204, time.Millisecond)
	RecordRealtimeDropped("cursor:update", "rate_limited")

	body := scrape(t)
	require.Contains(t, body, "vdcollab_relay_rooms 3")
	require.Contains(t, body, "vdcollab_open_tabs")
	require.Contains(t, body, `vdcollab_saves_total{status="error"}`)
	require.Contains(t, body, `vdcollab_api_requests_total{method="GET",status="error"}`)
	require.Contains(t, body, `vdcollab_api_requests_total{method="PUT",status="204"}`)
	require.Contains(t, body, `vdcollab_realtime_dropped_total{event="cursor:update",reason="rate_limited"}`)
}

func TestOpenTabsAddsUp(t *testing.T) {
	base := OpenTabs()
	AddOpenTabs(2)
	AddOpenTabs(1)
	require.Equal(t, base+3, OpenTabs())
	AddOpenTabs(-2)
	require.Equal(t, base+1, OpenTabs())
	AddOpenTabs(-1)
	require.Equal(t, base, OpenTabs())
}
