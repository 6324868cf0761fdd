package experiment

import "math"

// Default sample-size parameters. The z constants correspond to a 5%
// two-sided significance level and 80% power and are fixed regardless of
// the parameters callers pass in; RequiredSampleSizeExact derives them
// from the parameters instead.
const (
	DefaultSignificanceLevel = 0.05
	DefaultPower             = 0.8

	zAlphaFixed = 1.96
	zBetaFixed  = 0.84
)

// ZTestResult holds the outcome of a two-proportion z-test
type ZTestResult struct {
	ZScore          float64 `json:"z_score"`
	PValue          float64 `json:"p_value"`
	ConfidenceLevel float64 `json:"confidence_level"`
	Significant     bool    `json:"significant"`
}

// ConversionRate returns conversions/impressions, or 0 when there are no
// impressions
func ConversionRate(conversions, impressions int64) float64 {
	if impressions <= 0 {
		return 0
	}
	return float64(conversions) / float64(impressions)
}

// Improvement returns the relative lift of the variant rate over the
// control rate, or 0 when the control rate is 0
func Improvement(controlRate, variantRate float64) float64 {
	if controlRate <= 0 {
		return 0
	}
	return (variantRate - controlRate) / controlRate
}

// TwoProportionZTest runs a pooled two-proportion z-test between control
// and variant conversion counts. Confidence is (1-p)*100 and results are
// significant at 95% confidence. Empty samples produce the null result
// (z 0, p 1) instead of dividing by zero.
func TwoProportionZTest(controlConversions, controlImpressions, variantConversions, variantImpressions int64) ZTestResult {
	if controlImpressions <= 0 || variantImpressions <= 0 {
		return ZTestResult{ZScore: 0, PValue: 1, ConfidenceLevel: 0, Significant: false}
	}

	p1 := float64(controlConversions) / float64(controlImpressions)
	p2 := float64(variantConversions) / float64(variantImpressions)
	p := float64(controlConversions+variantConversions) / float64(controlImpressions+variantImpressions)

	se := math.Sqrt(p * (1 - p) * (1/float64(controlImpressions) + 1/float64(variantImpressions)))
	if se == 0 {
		return ZTestResult{ZScore: 0, PValue: 1, ConfidenceLevel: 0, Significant: false}
	}

	z := (p2 - p1) / se
	pValue := PValueFromZ(z)
	confidence := (1 - pValue) * 100

	return ZTestResult{
		ZScore:          z,
		PValue:          pValue,
		ConfidenceLevel: confidence,
		Significant:     confidence >= 95,
	}
}

// PValueFromZ converts a z-score to a one-sided p-value on the magnitude
// of z, using the Abramowitz and Stegun 7.1.26 rational approximation of
// the error function.
func PValueFromZ(z float64) float64 {
	return 1 - 0.5*(1+erfApprox(math.Abs(z)/math.Sqrt2))
}

// erfApprox is the Abramowitz and Stegun 7.1.26 approximation of erf(x),
// accurate to about 1.2e-7
func erfApprox(x float64) float64 {
	t := 1.0 / (1.0 + 0.5*math.Abs(x))
	tau := t * math.Exp(-x*x-
		1.26551223+
		t*(1.00002368+
			t*(0.37409196+
				t*(0.09678418+
					t*(-0.18628806+
						t*(0.27886807+
							t*(-1.13520398+
								t*(1.48851587+
									t*(-0.82215223+
										t*0.17087277)))))))))
	if x >= 0 {
		return 1 - tau
	}
	return tau - 1
}

// RequiredSampleSize estimates the per-variant sample size needed to
// detect the given relative effect over the baseline conversion rate.
// The z constants are fixed at 1.96/0.84; significanceLevel and power are
// accepted for interface compatibility but do not change the result.
func RequiredSampleSize(baselineConversionRate, minimumDetectableEffect, significanceLevel, power float64) int {
	_ = significanceLevel
	_ = power

	variantConversionRate := baselineConversionRate * (1 + minimumDetectableEffect)
	p := (baselineConversionRate + variantConversionRate) / 2
	se := math.Sqrt(2 * p * (1 - p))
	n := math.Pow((zAlphaFixed+zBetaFixed)/(variantConversionRate-baselineConversionRate), 2) * se
	return int(math.Ceil(n))
}

// RequiredSampleSizeExact is the corrected computation: it derives the
// critical values from the requested significance level (two-sided) and
// power via a normal-quantile approximation instead of the fixed 1.96 and
// 0.84, and uses the textbook pooled-variance formula.
func RequiredSampleSizeExact(baselineConversionRate, minimumDetectableEffect, significanceLevel, power float64) int {
	if significanceLevel <= 0 || significanceLevel >= 1 {
		significanceLevel = DefaultSignificanceLevel
	}
	if power <= 0 || power >= 1 {
		power = DefaultPower
	}

	zAlpha := probit(1 - significanceLevel/2)
	zBeta := probit(power)

	p1 := baselineConversionRate
	p2 := baselineConversionRate * (1 + minimumDetectableEffect)
	pBar := (p1 + p2) / 2

	num := zAlpha*math.Sqrt(2*pBar*(1-pBar)) + zBeta*math.Sqrt(p1*(1-p1)+p2*(1-p2))
	n := math.Pow(num/(p2-p1), 2)
	return int(math.Ceil(n))
}

// probit approximates the standard normal quantile for p in (0.5, 1)
// using the Abramowitz and Stegun 26.2.23 rational approximation
func probit(p float64) float64 {
	if p <= 0.5 {
		return 0
	}
	t := math.Sqrt(-2 * math.Log(1-p))
	num := 2.515517 + t*(0.802853+t*0.010328)
	den := 1 + t*(1.432788+t*(0.189269+t*0.001308))
	return t - num/den
}
