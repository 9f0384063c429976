package sse_test

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/moderation/infrastructure/events"
	infralogger "github.com/jonesrussell/north-cloud/moderation/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/moderation/infrastructure/sse"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHandler_StreamsFilteredEvents(t *testing.T) {
	t.Parallel()

	b := sse.NewBroker(infralogger.NewNop())
	router := gin.New()
	router.GET("/events", sse.Handler(b, infralogger.NewNop()))
	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events?types=item_decided", http.NoBody)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	waitForClients(t, b, 1)
	require.NoError(t, b.Publish(ctx, event(events.ItemQueued, "q-skip")))
	decided := event(events.ItemDecided, "q-1")
	require.NoError(t, b.Publish(ctx, decided))

	reader := bufio.NewReader(resp.Body)
	var frame []string
	for {
		line, readErr := reader.ReadString('\n')
		require.NoError(t, readErr)
		line = strings.TrimRight(line, "\n")
		if line == "" {
			break
		}
		frame = append(frame, line)
	}

	require.Len(t, frame, 3)
	assert.Equal(t, "event: ITEM_DECIDED", frame[0])
	assert.Equal(t, "id: "+decided.EventID.String(), frame[1])
	assert.Contains(t, frame[2], `"queue_id":"q-1"`)
}

func TestHandler_RejectsWhenFull(t *testing.T) {
	t.Parallel()

	b := sse.NewBroker(infralogger.NewNop(), sse.WithMaxClients(1))
	_, cancel, err := b.Subscribe(context.Background(), nil)
	require.NoError(t, err)
	defer cancel()

	router := gin.New()
	router.GET("/events", sse.Handler(b, infralogger.NewNop()))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events", http.NoBody))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestWriteEvent(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	e := event(events.ItemQueued, "q-9")
	require.NoError(t, sse.WriteEvent(&sb, e))

	out := sb.String()
	assert.True(t, strings.HasPrefix(out, "event: ITEM_QUEUED\nid: "+e.EventID.String()+"\ndata: {"))
	assert.True(t, strings.HasSuffix(out, "}\n\n"))
}
