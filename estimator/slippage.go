package estimator

import (
	"fmt"
	"math"
	"sync"

	"costflow/logger"
)

// slippageVariant is the tagged variant behind a Slippage estimator: a
// fitted regressor or the heuristic fallback.
type slippageVariant interface {
	estimate(orderSize, spread, volatility, imbalance float64) float64
}

// heuristicSlippage is the deterministic fallback used before any model has
// been fitted. The coefficients are a deliberately simple policy, not a
// calibrated fit; changing them requires new calibration data.
type heuristicSlippage struct{}

func (heuristicSlippage) estimate(orderSize, spread, volatility, imbalance float64) float64 {
	base := spread * 0.5
	sizeFactor := math.Log1p(orderSize) * 0.1
	volFactor := volatility * 2.0
	imbalanceFactor := -imbalance * spread * 0.3
	return base + sizeFactor + volFactor + imbalanceFactor
}

// fittedSlippage predicts from a regressor over standardized features.
type fittedSlippage struct {
	scaler  *scaler
	weights []float64
}

func (f *fittedSlippage) estimate(orderSize, spread, volatility, imbalance float64) float64 {
	x := f.scaler.transform([]float64{orderSize, spread, volatility, imbalance})
	return predict(f.weights, x)
}

// Slippage estimates the expected slippage of a market order in quote
// currency. It starts in heuristic mode and switches to a fitted linear or
// quantile regressor once Fit succeeds.
type Slippage struct {
	mu       sync.RWMutex
	variant  slippageVariant
	regType  RegressionType
	quantile float64
	log      *logger.Log
}

// NewSlippage creates a slippage estimator. An unknown regression type or a
// quantile outside (0, 1) is a configuration error and fails immediately.
func NewSlippage(regType RegressionType, quantile float64) (*Slippage, error) {
	switch regType {
	case RegressionLinear:
	case RegressionQuantile:
		if quantile <= 0 || quantile >= 1 {
			return nil, fmt.Errorf("quantile %v out of range (0, 1)", quantile)
		}
	default:
		return nil, fmt.Errorf("unknown regression type: %q", regType)
	}
	return &Slippage{
		variant:  heuristicSlippage{},
		regType:  regType,
		quantile: quantile,
		log:      logger.GetLogger(),
	}, nil
}

// Fitted reports whether a model has been fitted.
func (s *Slippage) Fitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.variant.(*fittedSlippage)
	return ok
}

// Fit trains the configured regressor on observed slippage samples. X rows
// are [orderSize, spread, volatility, imbalance]. Fewer than ten samples
// leaves the estimator in heuristic mode; this is logged, not an error.
func (s *Slippage) Fit(X [][]float64, y []float64) {
	log := s.log.WithComponent("slippage_estimator")
	if len(X) < minFitSamples {
		log.WithFields(logger.Fields{"samples": len(X)}).Warn("not enough data to fit slippage model")
		return
	}

	sc := fitScaler(X)
	scaled := sc.transformAll(X)

	var weights []float64
	var err error
	switch s.regType {
	case RegressionQuantile:
		weights, err = solveQuantile(scaled, y, s.quantile)
	default:
		weights, err = solveOLS(scaled, y)
	}
	if err != nil {
		log.WithError(err).Warn("slippage model fit failed, keeping heuristic")
		return
	}

	s.mu.Lock()
	s.variant = &fittedSlippage{scaler: sc, weights: weights}
	s.mu.Unlock()

	log.WithFields(logger.Fields{"regression": string(s.regType), "samples": len(X)}).Info("fitted slippage model")
}

// Estimate returns the expected slippage for a market order under the
// current book conditions.
func (s *Slippage) Estimate(orderSize, spread, volatility, imbalance float64) float64 {
	s.mu.RLock()
	v := s.variant
	s.mu.RUnlock()
	return v.estimate(orderSize, spread, volatility, imbalance)
}
