package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civicmotion/bikeshare-backend/internal/middleware"
)

func (a *API) refreshLoyaltyHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	rd, ok := a.currentRider(c)
	if !ok {
		return
	}

	changed, err := a.deps.Loyalty.UpdateRiderTier(c, rd)
	if err != nil {
		logger.ErrorContext(c, "failed to refresh tier", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	tier := rd.Tier
	if changed {
		// Re-read for the freshly stored tier.
		updated, err := a.deps.Riders.Get(c, a.deps.DB, rd.ID)
		if err != nil {
			logger.ErrorContext(c, "failed to reload rider", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		tier = updated.Tier
	}

	c.JSON(http.StatusOK, gin.H{"tier": tier, "changed": changed})
}
