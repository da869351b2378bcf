package processing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// FWHMFactor converts a Gaussian sigma to its full width at half maximum.
var FWHMFactor = 2 * math.Sqrt(2*math.Ln2)

const (
	initialAmplitude = 10.0
	initialSigma     = 4.0
	numParams        = 4
	maxIterations    = 200
	convergenceTol   = 1e-10
	maxDamping       = 1e16
)

type FitParams struct {
	Amplitude float64 `json:"amplitude"`
	Baseline  float64 `json:"baseline"`
	Center    float64 `json:"center"`
	Sigma     float64 `json:"sigma"`
}

func (p FitParams) vector() []float64 {
	return []float64{p.Amplitude, p.Baseline, p.Center, p.Sigma}
}

func paramsFrom(v []float64) FitParams {
	return FitParams{Amplitude: v[0], Baseline: v[1], Center: v[2], Sigma: v[3]}
}

// FitResult is either a converged fit (OK) or a failure with Reason.
type FitResult struct {
	OK         bool
	Reason     string
	Params     FitParams
	FWHM       float64
	Start      int
	End        int
	X          []float64
	Curve      []float64
	Iterations int
}

func failed(start, end int, format string, args ...any) FitResult {
	return FitResult{Reason: fmt.Sprintf(format, args...), Start: start, End: end}
}

// Gaussian is b + a*exp(-(x-x0)^2 / (2*sigma^2)).
func Gaussian(x float64, p FitParams) float64 {
	d := x - p.Center
	return p.Baseline + p.Amplitude*math.Exp(-d*d/(2*p.Sigma*p.Sigma))
}

// FitWindow clamps [peakPos-halfWidth, peakPos+halfWidth) to [0, n).
func FitWindow(n, peakPos, halfWidth int) (int, int) {
	start := peakPos - halfWidth
	end := peakPos + halfWidth
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if end < start {
		end = start
	}
	return start, end
}

// FitGaussian fits a Gaussian plus constant to the lineout window around
// peakPos with Levenberg-Marquardt, seeded with amplitude 10, the baseline at
// column 0, the center at peakPos and sigma 4.
func FitGaussian(lineout []float64, peakPos, halfWidth int) FitResult {
	start, end := FitWindow(len(lineout), peakPos, halfWidth)
	n := end - start
	if n < numParams {
		return failed(start, end, "fit window [%d, %d) has %d points, need at least %d", start, end, n, numParams)
	}

	x := make([]float64, n)
	y := lineout[start:end]
	for i := range x {
		x[i] = float64(start + i)
	}
	if !allFinite(y) {
		return failed(start, end, "lineout contains non-finite values")
	}

	guess := FitParams{
		Amplitude: initialAmplitude,
		Baseline:  lineout[0],
		Center:    float64(peakPos),
		Sigma:     initialSigma,
	}
	p, iterations, err := levenbergMarquardt(x, y, guess.vector())
	if err != nil {
		return failed(start, end, "%v", err)
	}

	params := paramsFrom(p)
	if params.Sigma == 0 || !allFinite(p) {
		return failed(start, end, "degenerate fit parameters %+v", params)
	}
	curve := make([]float64, n)
	for i, xi := range x {
		curve[i] = Gaussian(xi, params)
	}
	return FitResult{
		OK:         true,
		Params:     params,
		FWHM:       FWHMFactor * math.Abs(params.Sigma),
		Start:      start,
		End:        end,
		X:          x,
		Curve:      curve,
		Iterations: iterations,
	}
}

func levenbergMarquardt(x, y, p []float64) ([]float64, int, error) {
	n := len(x)
	jac := mat.NewDense(n, numParams, nil)
	resid := mat.NewVecDense(n, nil)
	trial := make([]float64, numParams)

	cost := residuals(x, y, p, resid)
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return nil, 0, fmt.Errorf("initial guess gives non-finite residuals")
	}
	damping := 1e-3

	for iter := 1; iter <= maxIterations; iter++ {
		if cost == 0 {
			return p, iter - 1, nil
		}
		jacobian(x, p, jac)

		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)
		var grad mat.VecDense
		grad.MulVec(jac.T(), resid)

		improved := false
		for !improved {
			if damping > maxDamping {
				return nil, iter, fmt.Errorf("fit did not converge after %d iterations (damping exhausted)", iter)
			}
			step, ok := solveDamped(&jtj, &grad, damping)
			if !ok {
				damping *= 10
				continue
			}
			for i := range trial {
				trial[i] = p[i] + step[i]
			}
			trialResid := mat.NewVecDense(n, nil)
			trialCost := residuals(x, y, trial, trialResid)
			if math.IsNaN(trialCost) || trialCost >= cost {
				if smallStep(step, p) {
					return p, iter, nil
				}
				damping *= 10
				continue
			}

			improved = true
			relDrop := (cost - trialCost) / cost
			converged := relDrop < convergenceTol || smallStep(step, p)
			copy(p, trial)
			resid.CopyVec(trialResid)
			cost = trialCost
			damping = math.Max(damping/10, 1e-12)
			if converged {
				return p, iter, nil
			}
		}
	}
	return nil, maxIterations, fmt.Errorf("fit did not converge after %d iterations", maxIterations)
}

func solveDamped(jtj *mat.Dense, grad *mat.VecDense, damping float64) ([]float64, bool) {
	a := mat.DenseCopyOf(jtj)
	maxDiag := 0.0
	for i := 0; i < numParams; i++ {
		maxDiag = math.Max(maxDiag, jtj.At(i, i))
	}
	floor := 1e-12 * math.Max(maxDiag, 1)
	for i := 0; i < numParams; i++ {
		d := math.Max(jtj.At(i, i), floor)
		a.Set(i, i, jtj.At(i, i)+damping*d)
	}
	var step mat.VecDense
	if err := step.SolveVec(a, grad); err != nil {
		return nil, false
	}
	out := step.RawVector().Data
	if !allFinite(out) {
		return nil, false
	}
	return append([]float64(nil), out...), true
}

func smallStep(step, p []float64) bool {
	for i := range step {
		if math.Abs(step[i]) > convergenceTol*(math.Abs(p[i])+convergenceTol) {
			return false
		}
	}
	return true
}

func residuals(x, y, p []float64, out *mat.VecDense) float64 {
	params := paramsFrom(p)
	var cost float64
	for i, xi := range x {
		r := y[i] - Gaussian(xi, params)
		out.SetVec(i, r)
		cost += r * r
	}
	return cost
}

func jacobian(x, p []float64, out *mat.Dense) {
	a, x0, sigma := p[0], p[2], p[3]
	s2 := sigma * sigma
	for i, xi := range x {
		d := xi - x0
		e := math.Exp(-d * d / (2 * s2))
		out.Set(i, 0, e)
		out.Set(i, 1, 1)
		out.Set(i, 2, a*e*d/s2)
		out.Set(i, 3, a*e*d*d/(s2*sigma))
	}
}

func allFinite(values []float64) bool {
	return !floats.HasNaN(values) && !math.IsInf(floats.Max(values), 1) && !math.IsInf(floats.Min(values), -1)
}
