package profiling_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	infralogger "github.com/jonesrussell/north-cloud/moderation/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/moderation/infrastructure/profiling"
)

func TestHandler_ServesIndex(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	profiling.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/pprof/", http.NoBody))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "goroutine")
}

func TestStart_DisabledReturnsNil(t *testing.T) {
	t.Parallel()

	assert.Nil(t, profiling.Start(profiling.Config{}, infralogger.NewNop()))
}
