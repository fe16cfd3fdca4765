package handlers

import (
	"net/http"

	"battery-estimator/internal/api/models"
	"battery-estimator/internal/model"

	"github.com/gin-gonic/gin"
)

// ListBatches handles GET /api/v1/batches
func ListBatches(c *gin.Context) {
	batches := []models.BatchInfo{}
	for _, id := range model.Batches() {
		wc, err := model.LookupWorkingCondition(id)
		if err != nil {
			continue
		}
		lo, hi := wc.SOCWindow()
		batches = append(batches, models.BatchInfo{
			Batch:   id,
			MidSOC:  wc.MidSOC,
			DOD:     wc.DOD,
			SOCLow:  lo,
			SOCHigh: hi,
		})
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches})
}

// GetBatch handles GET /api/v1/batches/:batch
func GetBatch(c *gin.Context) {
	id := c.Param("batch")
	wc, err := model.LookupWorkingCondition(id)
	if err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "UNKNOWN_BATCH",
				Message: err.Error(),
			},
		})
		return
	}
	lo, hi := wc.SOCWindow()
	c.JSON(http.StatusOK, models.BatchInfo{Batch: id, MidSOC: wc.MidSOC, DOD: wc.DOD, SOCLow: lo, SOCHigh: hi})
}
