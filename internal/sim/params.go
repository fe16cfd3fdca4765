package sim

import (
	"fmt"
	"sort"
)

// Physical constants.
const (
	gasConstant    = 8.3144621 // J/(mol K)
	faradayConst   = 96487.0   // C/mol
	kelvinOffset   = 273.15
	defaultAmbient = 292.1 // K
)

// Parameter names understood by Model.
const (
	ParamQMax             = "qMax"
	ParamRo               = "Ro"
	ParamWr               = "wr"
	ParamWq               = "wq"
	ParamWd               = "wd"
	ParamQMaxThreshold    = "qMaxThreshold"
	ParamVEOD             = "VEOD"
	ParamAmbient          = "tb"
	ParamProcessNoise     = "process_noise"
	ParamMeasurementNoise = "measurement_noise"
	ParamXnMax            = "xnMax"
	ParamXpMin            = "xpMin"
	ParamVolSFraction     = "VolSFraction"
	ParamVol              = "Vol"
	ParamTDiffusion       = "tDiffusion"
	ParamTo               = "to"
	ParamTsn              = "tsn"
	ParamTsp              = "tsp"
	ParamSn               = "Sn"
	ParamSp               = "Sp"
	ParamKn               = "kn"
	ParamKp               = "kp"
	ParamAlpha            = "alpha"
	ParamU0p              = "U0p"
	ParamU0n              = "U0n"
	ParamKpSlope          = "Kp"
	ParamMC               = "mC"
	ParamHA               = "hA"
)

// DefaultParameters returns the reference parameter set of a retired 18650 cell.
func DefaultParameters() map[string]float64 {
	return map[string]float64{
		ParamQMax:             3800 / 0.7,
		ParamRo:               0.117215,
		ParamWr:               1e-6,
		ParamWq:               -1e-2,
		ParamWd:               1e-2,
		ParamQMaxThreshold:    3800,
		ParamVEOD:             3.0,
		ParamAmbient:          defaultAmbient,
		ParamProcessNoise:     1e-3,
		ParamMeasurementNoise: 0.02,
		ParamXnMax:            0.6,
		ParamXpMin:            0.4,
		ParamVolSFraction:     0.1,
		ParamVol:              2e-5,
		ParamTDiffusion:       7e6,
		ParamTo:               6.08671,
		ParamTsn:              1001.38,
		ParamTsp:              46.4311,
		ParamSn:               4.37545e-4,
		ParamSp:               3.0962e-4,
		ParamKn:               2120.96,
		ParamKp:               248898,
		ParamAlpha:            0.5,
		ParamU0p:              4.15,
		ParamU0n:              0.01,
		ParamKpSlope:          0.5,
		ParamMC:               37.04,
		ParamHA:               0.2,
	}
}

// params is the resolved, typed view of a parameter map used inside the integration loop.
type params struct {
	vol, volS, volB  float64
	tDiffusion       float64
	to, tsn, tsp     float64
	sn, sp, kn, kp   float64
	alpha            float64
	u0p, u0n         float64
	kpSlope          float64
	xpMin            float64
	mC, hA, ambient  float64
	wq, wr, wd       float64
	veod             float64
	processNoise     float64
	measurementNoise float64
}

func resolve(m map[string]float64) params {
	vol := m[ParamVol]
	volS := vol * m[ParamVolSFraction]
	return params{
		vol:              vol,
		volS:             volS,
		volB:             vol - volS,
		tDiffusion:       m[ParamTDiffusion],
		to:               m[ParamTo],
		tsn:              m[ParamTsn],
		tsp:              m[ParamTsp],
		sn:               m[ParamSn],
		sp:               m[ParamSp],
		kn:               m[ParamKn],
		kp:               m[ParamKp],
		alpha:            m[ParamAlpha],
		u0p:              m[ParamU0p],
		u0n:              m[ParamU0n],
		kpSlope:          m[ParamKpSlope],
		xpMin:            m[ParamXpMin],
		mC:               m[ParamMC],
		hA:               m[ParamHA],
		ambient:          m[ParamAmbient],
		wq:               m[ParamWq],
		wr:               m[ParamWr],
		wd:               m[ParamWd],
		veod:             m[ParamVEOD],
		processNoise:     m[ParamProcessNoise],
		measurementNoise: m[ParamMeasurementNoise],
	}
}

func sortedKeys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// UnknownParameterError is returned when a name is not part of the model.
type UnknownParameterError struct {
	Name string
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("unknown model parameter %q", e.Name)
}
