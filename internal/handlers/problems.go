package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	tcc "timecourse_control"
	"timecourse_control/internal/service"
)

const (
	statusOK = "ok"

	errFromInvalid    = "invalid 'from' time; use RFC3339 or YYYY-MM-DD"
	errToInvalid      = "invalid 'to' time; use RFC3339 or YYYY-MM-DD"
	errInternal       = "internal error"
	errLoadEvaluation = "failed to load evaluations"

	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"
)

func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...any) {
	if err != nil {
		fields := append([]any{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// serviceError maps service errors to HTTP responses. Caller mistakes are
// reported verbatim; anything else is logged and hidden.
func (h *Handler) serviceError(c *gin.Context, logKey string, err error, kv ...any) {
	switch {
	case errors.Is(err, service.ErrProblemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidInput):
		h.log.Infow(logKey, append([]any{"err", err}, kv...)...)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, errInternal, logKey, err, kv...)
	}
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": statusOK})
}

// @Summary      Compile a control problem
// @Description  Assembles the condition, parameter, measurement and timecourse tables and stores the result.
// @Tags         problems
// @Accept       json
// @Produce      json
// @Param        body  body      timecourse_control.CompileRequest  true  "Control problem tables as TSV"
// @Success      201   {object}  models.Problem
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/problems [post]
// @Security     BearerAuth
func (h *Handler) compileProblem(c *gin.Context) {
	var req tcc.CompileRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	in, err := service.ParseCompileRequest(req)
	if err != nil {
		h.serviceError(c, "problem_parse_failed", err, "problem_id", req.ProblemID)
		return
	}
	p, err := h.services.Compiler.Compile(c.Request.Context(), in)
	if err != nil {
		h.serviceError(c, "problem_compile_failed", err, "problem_id", req.ProblemID)
		return
	}
	compiledProblemsTotal.Inc()
	c.JSON(http.StatusCreated, p)
}

// @Summary      List compiled problems
// @Tags         problems
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, problems"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/problems [get]
// @Security     BearerAuth
func (h *Handler) listProblems(c *gin.Context) {
	problems, err := h.services.Problems.List(c.Request.Context())
	if err != nil {
		h.serviceError(c, "problem_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(problems), "problems": problems})
}

// @Summary      Get a compiled problem
// @Tags         problems
// @Produce      json
// @Param        id   path      string  true  "Problem id"
// @Success      200  {object}  models.Problem
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/problems/{id} [get]
// @Security     BearerAuth
func (h *Handler) getProblem(c *gin.Context) {
	id := c.Param("id")
	p, err := h.services.Problems.Get(c.Request.Context(), id)
	if err != nil {
		h.serviceError(c, "problem_get_failed", err, "id", id)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary      Evaluate the objective
// @Description  Combines per-period log-likelihoods and sensitivities into the objective and its gradient.
// @Tags         problems
// @Accept       json
// @Produce      json
// @Param        id    path      string                              true  "Problem id"
// @Param        body  body      timecourse_control.EvaluateRequest  true  "Per-period simulation results"
// @Success      200   {object}  models.Evaluation
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Router       /api/v1/problems/{id}/objective [post]
// @Security     BearerAuth
func (h *Handler) evaluateObjective(c *gin.Context) {
	id := c.Param("id")
	var req tcc.EvaluateRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	e, err := h.services.Objective.Evaluate(c.Request.Context(), id, service.EvaluateInput{
		Names:   req.Names,
		Results: req.Results,
	})
	if err != nil {
		result := "error"
		if errors.Is(err, service.ErrInvalidInput) {
			result = "invalid"
		}
		objectiveEvaluationsTotal.WithLabelValues(result).Inc()
		h.serviceError(c, "objective_evaluate_failed", err, "id", id)
		return
	}
	objectiveEvaluationsTotal.WithLabelValues("ok").Inc()
	c.JSON(http.StatusOK, e)
}

// @Summary      List evaluations
// @Description  Filter by date (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD'). A date-only 'to' covers the whole day.
// @Tags         problems
// @Produce      json
// @Param        id    path    string  true   "Problem id"
// @Param        from  query   string  false  "Start of range"  example(2025-08-01)
// @Param        to    query   string  false  "End of range"    example(2025-08-31)
// @Success      200   {object}  map[string]interface{}  "count, evaluations"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/problems/{id}/evaluations [get]
// @Security     BearerAuth
func (h *Handler) listEvaluations(c *gin.Context) {
	filter, ok := h.evaluationFilter(c)
	if !ok {
		return
	}
	filter.ProblemID = c.Param("id")
	evaluations, err := h.services.EvaluationLog.List(c.Request.Context(), filter)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errLoadEvaluation, "evaluations_list_failed", err,
			"problem", filter.ProblemID, "from", filter.From, "to", filter.To)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":       len(evaluations),
		"evaluations": evaluations,
	})
}

// evaluationFilter reads the from/to query parameters, writing a 400 on
// failure.
func (h *Handler) evaluationFilter(c *gin.Context) (service.EvaluationFilter, bool) {
	var (
		f   service.EvaluationFilter
		err error
	)
	if qs := c.Query("from"); qs != "" {
		if f.From, err = parseQueryTime(qs); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errFromInvalid})
			return f, false
		}
	}
	if qs := c.Query("to"); qs != "" {
		if f.To, err = parseQueryTime(qs); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errToInvalid})
			return f, false
		}
		if isDateOnly(qs) {
			f.To = f.To.Add(24*time.Hour - time.Nanosecond).UTC()
		}
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'from' must be <= 'to'"})
		return f, false
	}
	return f, true
}

func isDateOnly(s string) bool {
	return !strings.ContainsAny(s, "T ")
}

func parseQueryTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, layoutDateTime, layoutDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf(
		"invalid time format %q, expected one of: "+
			"RFC3339 (e.g. 2025-08-27T15:04:05Z), "+
			"'YYYY-MM-DD HH:MM:SS', "+
			"'YYYY-MM-DD'",
		s,
	)
}
