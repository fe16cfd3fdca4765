package handlers

import (
	"net/http"
	"sort"

	"battery-estimator/internal/api/models"
	"battery-estimator/internal/model"
	"battery-estimator/internal/sim"

	"github.com/gin-gonic/gin"
)

var parameterDescriptions = map[string]string{
	sim.ParamQMax:          "Maximum mobile charge (C)",
	sim.ParamRo:            "Ohmic resistance (Ohm)",
	sim.ParamWr:            "Growth of Ro per coulomb discharged (Ohm/C)",
	sim.ParamQMaxThreshold: "Reference capacity, charge pools are sized for qMaxThreshold/0.7 (C)",
	sim.ParamVEOD:          "End-of-discharge voltage (V)",
	sim.ParamAmbient:       "Ambient temperature (K)",
}

// ListParameters handles GET /api/v1/parameters
func ListParameters(c *gin.Context) {
	defaults := sim.DefaultParameters()
	names := make([]string, 0, len(defaults))
	for name := range defaults {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]models.ParameterInfo, 0, len(names))
	for _, name := range names {
		params = append(params, models.ParameterInfo{
			Name:        name,
			Type:        "float",
			Description: parameterDescriptions[name],
			Default:     defaults[name],
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"parameters":   params,
		"default_keys": model.DefaultKeys,
	})
}
