package estimator

import (
	"math"
	"sync"

	"costflow/logger"
)

// makerTakerVariant mirrors the slippage duality for maker proportion.
type makerTakerVariant interface {
	estimate(orderSize, spread, volatility, imbalance float64) float64
}

// heuristicMakerTaker is the fallback policy: large orders and volatile
// markets push toward taker fills, wide spreads and favorable imbalance
// toward maker fills.
type heuristicMakerTaker struct{}

func (heuristicMakerTaker) estimate(orderSize, spread, volatility, imbalance float64) float64 {
	proportion := 0.5 -
		0.1*math.Log1p(orderSize)/10.0 +
		0.1*math.Tanh(spread) -
		0.2*volatility +
		0.1*imbalance
	return clamp01(proportion)
}

// fittedMakerTaker predicts P(maker) from a logistic classifier over
// standardized features. The sigmoid keeps the output in [0, 1] by
// construction.
type fittedMakerTaker struct {
	scaler  *scaler
	weights []float64
}

func (f *fittedMakerTaker) estimate(orderSize, spread, volatility, imbalance float64) float64 {
	x := f.scaler.transform([]float64{orderSize, spread, volatility, imbalance})
	return sigmoid(predict(f.weights, x))
}

// MakerTaker estimates the proportion of a market order that fills as maker.
type MakerTaker struct {
	mu      sync.RWMutex
	variant makerTakerVariant
	log     *logger.Log
}

// NewMakerTaker creates a maker/taker estimator in heuristic mode.
func NewMakerTaker() *MakerTaker {
	return &MakerTaker{
		variant: heuristicMakerTaker{},
		log:     logger.GetLogger(),
	}
}

// Fitted reports whether a classifier has been fitted.
func (m *MakerTaker) Fitted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.variant.(*fittedMakerTaker)
	return ok
}

// Fit trains the logistic classifier. X rows are [orderSize, spread,
// volatility, imbalance]; y labels are 1 for maker fills and 0 for taker
// fills. Fewer than ten samples leaves the heuristic in place.
func (m *MakerTaker) Fit(X [][]float64, y []float64) {
	log := m.log.WithComponent("maker_taker_estimator")
	if len(X) < minFitSamples {
		log.WithFields(logger.Fields{"samples": len(X)}).Warn("not enough data to fit maker/taker model")
		return
	}

	sc := fitScaler(X)
	weights, err := solveLogistic(sc.transformAll(X), y)
	if err != nil {
		log.WithError(err).Warn("maker/taker model fit failed, keeping heuristic")
		return
	}

	m.mu.Lock()
	m.variant = &fittedMakerTaker{scaler: sc, weights: weights}
	m.mu.Unlock()

	log.WithFields(logger.Fields{"samples": len(X)}).Info("fitted maker/taker model")
}

// Estimate returns the expected maker proportion in [0, 1].
func (m *MakerTaker) Estimate(orderSize, spread, volatility, imbalance float64) float64 {
	m.mu.RLock()
	v := m.variant
	m.mu.RUnlock()
	return v.estimate(orderSize, spread, volatility, imbalance)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
