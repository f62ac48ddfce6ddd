package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"timecourse_control/internal/models"
	"timecourse_control/internal/service"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMsgSize       = 1 << 12 // 4 KB
	defaultInterval  = 1 * time.Second
	maxInterval      = 10 * time.Second
	maxIntervalMilli = 10_000
)

type wsEnvelope struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	// TODO: restrict origins once the API is served behind a known host.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// evaluationCursor remembers which evaluations a stream already sent.
type evaluationCursor struct {
	since time.Time
	sent  map[string]struct{}
}

// next returns the evaluations not yet sent and advances the cursor. Only
// ids at the newest timestamp are kept, since older ones can no longer
// match the filter.
func (cur *evaluationCursor) next(evaluations []models.Evaluation) []models.Evaluation {
	var fresh []models.Evaluation
	for _, e := range evaluations {
		if _, ok := cur.sent[e.ID]; ok {
			continue
		}
		fresh = append(fresh, e)
		if e.OccurredAt.After(cur.since) {
			cur.since = e.OccurredAt
			cur.sent = map[string]struct{}{}
		}
		if e.OccurredAt.Equal(cur.since) {
			cur.sent[e.ID] = struct{}{}
		}
	}
	return fresh
}

// @Summary      Evaluation stream
// @Description  WebSocket streaming new evaluations of a problem as {"type":"evaluations","data":[...]}.
// @Tags         problems
// @Param        problem_id   query  string  true   "Problem id"
// @Param        interval     query  string  false  "Poll interval, e.g. 500ms (max 10s)"
// @Param        interval_ms  query  int     false  "Poll interval in milliseconds"
// @Router       /ws [get]
func (h *Handler) wsConnect(c *gin.Context) {
	problemID := c.Query("problem_id")
	if problemID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "problem_id is required"})
		return
	}
	interval := h.parseInterval(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Errorw("ws_upgrade_failed", "err", err)
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go h.startReader(conn, done)

	ticker := time.NewTicker(interval)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ping.Stop()
	}()

	ctx := c.Request.Context()
	cur := &evaluationCursor{sent: map[string]struct{}{}}
	if err := h.sendEvaluations(ctx, conn, problemID, cur, true); err != nil {
		h.log.Infow("ws_write_failed_initial", "problem", problemID, "err", err)
		return
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.log.Infow("ws_ping_failed", "err", err)
				return
			}
		case <-ticker.C:
			if err := h.sendEvaluations(ctx, conn, problemID, cur, false); err != nil {
				h.log.Infow("ws_write_failed", "problem", problemID, "err", err)
				return
			}
		}
	}
}

// parseInterval reads ?interval=2s or ?interval_ms=2000 with bounds.
func (h *Handler) parseInterval(c *gin.Context) time.Duration {
	if s := c.Query("interval"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 && d <= maxInterval {
			return d
		}
	}
	if ms := c.Query("interval_ms"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 && v <= maxIntervalMilli {
			return time.Duration(v) * time.Millisecond
		}
	}
	return defaultInterval
}

// startReader drains incoming frames so control frames are handled and a
// closed peer is noticed.
func (h *Handler) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.log.Debugw("ws_read_closed", "err", err)
			return
		}
	}
}

// sendEvaluations writes the evaluations recorded since the last send. An
// empty batch is written only when always is set.
func (h *Handler) sendEvaluations(ctx context.Context, conn *websocket.Conn, problemID string, cur *evaluationCursor, always bool) error {
	evaluations, err := h.services.EvaluationLog.List(ctx, service.EvaluationFilter{
		ProblemID: problemID,
		From:      cur.since,
	})
	if err != nil {
		h.log.Errorw("ws_list_evaluations_failed", "problem", problemID, "err", err)
		return err
	}
	fresh := cur.next(evaluations)
	if len(fresh) == 0 && !always {
		return nil
	}
	if fresh == nil {
		fresh = []models.Evaluation{}
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(wsEnvelope{Type: "evaluations", Data: fresh})
}
