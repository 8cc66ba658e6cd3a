package vad

// Noise floor EMA coefficients. The fast coefficient lets the floor converge
// quickly during the first calibration window after a reset; the slow
// coefficient then keeps transient loud noises from permanently raising it.
const (
	noiseAlphaFast = 0.1
	noiseAlphaSlow = 0.01

	// noiseCalibrationSamples is the number of silence frames folded with the
	// fast coefficient before switching to the slow one.
	noiseCalibrationSamples = 100

	// initialNoiseFloor is a conservative small positive seed so that early
	// frames are not misclassified as speech against a zero floor.
	initialNoiseFloor = 0.01
)

// NoiseEstimator maintains an exponentially-weighted moving average of frame
// energy observed during silence. The estimate is always ≥ 0.
type NoiseEstimator struct {
	floor   float64
	samples int
}

// NewNoiseEstimator returns an estimator seeded with the initial floor.
func NewNoiseEstimator() *NoiseEstimator {
	return &NoiseEstimator{floor: initialNoiseFloor}
}

// Update folds a silence-frame energy into the floor estimate.
func (n *NoiseEstimator) Update(energy float64) {
	alpha := noiseAlphaSlow
	if n.samples < noiseCalibrationSamples {
		alpha = noiseAlphaFast
	}
	n.floor = (1-alpha)*n.floor + alpha*energy
	n.samples++
}

// Floor returns the current noise floor estimate.
func (n *NoiseEstimator) Floor() float64 { return n.floor }

// Recalibrate restarts the fast calibration window without discarding the
// current floor value. Called whenever the detector re-enters Silence so
// residual synthesized-speech bleed does not bias the next utterance.
func (n *NoiseEstimator) Recalibrate() { n.samples = 0 }

// Reset restores the estimator to its initial state for a new session.
func (n *NoiseEstimator) Reset() {
	n.floor = initialNoiseFloor
	n.samples = 0
}
