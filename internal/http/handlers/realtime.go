package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/coursecatalog-backend/internal/http/response"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/logger"
	"github.com/yungbote/coursecatalog-backend/internal/realtime"
)

type RealtimeHandler struct {
	log    *logger.Logger
	hub    *realtime.Hub
	levels map[string]bool
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.Hub, levels []string) *RealtimeHandler {
	known := make(map[string]bool, len(levels))
	for _, l := range levels {
		known[l] = true
	}
	return &RealtimeHandler{log: log.With("handler", "RealtimeHandler"), hub: hub, levels: known}
}

// GET /api/events?level=<level>[,<level>]
func (h *RealtimeHandler) Stream(c *gin.Context) {
	var channels []string
	for _, raw := range strings.Split(c.Query("level"), ",") {
		level := strings.TrimSpace(raw)
		if level == "" {
			continue
		}
		if !h.levels[level] {
			response.RespondError(c, http.StatusBadRequest, "validation", fmt.Errorf("unknown catalog level %q", level))
			return
		}
		channels = append(channels, realtime.LevelChannel(level))
	}
	if len(channels) == 0 {
		channels = []string{realtime.ChannelAll}
	}

	client := h.hub.NewClient()
	for _, ch := range channels {
		h.hub.AddChannel(client, ch)
	}
	h.log.Info("SSE stream open", "client_id", client.ID, "channels", channels)
	defer func() {
		h.hub.CloseClient(client)
		h.log.Info("SSE stream closed", "client_id", client.ID)
	}()

	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
