package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	tcc "timecourse_control"
	"timecourse_control/internal/service"
)

// @Summary      Truncate to a horizon window
// @Description  Combines the original and control problems and keeps the estimation or control part inside [t0, t1].
// @Tags         horizon
// @Accept       json
// @Produce      json
// @Param        variant  path      string                              true  "Window variant"  Enums(estimation,control)
// @Param        body     body      timecourse_control.TruncateRequest  true  "Tables as TSV and the window"
// @Success      200      {object}  timecourse_control.TruncateResponse
// @Failure      400      {object}  map[string]string
// @Failure      401      {object}  map[string]string
// @Failure      422      {object}  map[string]string
// @Router       /api/v1/horizon/{variant} [post]
// @Security     BearerAuth
func (h *Handler) truncateHorizon(c *gin.Context) {
	variant, err := service.ParseVariant(c.Param("variant"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	var req tcc.TruncateRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	in, err := service.ParseTruncateRequest(variant, req, h.opts.DefaultInclusive)
	if err != nil {
		h.serviceError(c, "horizon_parse_failed", err, "variant", variant)
		return
	}
	out, err := h.services.Horizon.Truncate(c.Request.Context(), in)
	if err != nil {
		h.serviceError(c, "horizon_truncate_failed", err, "variant", variant)
		return
	}
	c.JSON(http.StatusOK, tcc.TruncateResponse{
		Parameters:   out.Parameters.String(),
		Measurements: out.Measurements.String(),
	})
}
