package cron

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/subcycle/subcycle/internal/logger"
	"github.com/subcycle/subcycle/internal/service"
)

// RenewalCronHandler exposes the renewal sweep to an external scheduler.
// The endpoints are safe to call repeatedly; the underlying sweep skips rows
// that are not due.
type RenewalCronHandler struct {
	renewalService service.RenewalService
	log            *logger.Logger
}

func NewRenewalCronHandler(renewalService service.RenewalService, log *logger.Logger) *RenewalCronHandler {
	return &RenewalCronHandler{
		renewalService: renewalService,
		log:            log,
	}
}

// GetDueForRenewal previews the rows the next sweep would act on.
func (h *RenewalCronHandler) GetDueForRenewal(c *gin.Context) {
	subs, err := h.renewalService.GetDueForRenewal(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to list due renewals", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":         len(subs),
		"subscriptions": subs,
	})
}

// ProcessDueRenewals runs one renewal and dunning sweep.
func (h *RenewalCronHandler) ProcessDueRenewals(c *gin.Context) {
	run, err := h.renewalService.ProcessDueRenewals(c.Request.Context())
	if err != nil {
		h.log.Error("Renewal sweep failed", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, run)
}

// ProcessScheduledChanges consumes all due scheduled changes.
func (h *RenewalCronHandler) ProcessScheduledChanges(c *gin.Context) {
	run, err := h.renewalService.ProcessScheduledChanges(c.Request.Context())
	if err != nil {
		h.log.Error("Scheduled change sweep failed", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, run)
}
