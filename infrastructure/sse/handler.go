package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/moderation/infrastructure/events"
	infralogger "github.com/jonesrussell/north-cloud/moderation/infrastructure/logger"
)

const contentType = "text/event-stream"

// Handler streams events to the caller. The optional types query parameter
// is a comma-separated list of event types to receive.
func Handler(b *Broker, logger infralogger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		stream, cancel, err := b.Subscribe(c.Request.Context(), TypeFilter(parseTypes(c.Query("types"))...))
		if errors.Is(err, ErrTooManyClients) || errors.Is(err, ErrClosed) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		defer cancel()

		// Streams outlive the server's write timeout.
		_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

		h := c.Writer.Header()
		h.Set("Content-Type", contentType)
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
		c.Writer.Flush()

		logger.Debug("SSE client connected", infralogger.String("remote_addr", c.ClientIP()))

		ticker := time.NewTicker(b.heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case e, ok := <-stream:
				if !ok {
					return
				}
				if writeErr := WriteEvent(c.Writer, e); writeErr != nil {
					logger.Debug("SSE write failed", infralogger.Error(writeErr))
					return
				}
			case <-ticker.C:
				if _, writeErr := io.WriteString(c.Writer, ": heartbeat\n\n"); writeErr != nil {
					return
				}
			case <-c.Request.Context().Done():
				return
			}
			c.Writer.Flush()
		}
	}
}

// WriteEvent encodes e in the text/event-stream format.
func WriteEvent(w io.Writer, e events.ModerationEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err = fmt.Fprintf(w, "event: %s\nid: %s\ndata: %s\n\n", e.EventType, e.EventID, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

func parseTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	var out []events.EventType
	for _, part := range strings.Split(raw, ",") {
		if p := strings.ToUpper(strings.TrimSpace(part)); p != "" {
			out = append(out, events.EventType(p))
		}
	}
	return out
}
