package types

import "errors"

// Validation errors raised at the ingress boundary. Nothing is mutated when
// one of these is returned.
var (
	ErrSymbolRequired      = errors.New("Symbol is required")
	ErrQuantityNotPositive = errors.New("Quantity must be positive")
	ErrInvalidLimitPrice   = errors.New("limitPrice must be a valid number")
	ErrUnsupportedSide     = errors.New("Unsupported order side")
	ErrSimulationDisabled  = errors.New("Simulation mode is disabled")
	ErrUnknownMarket       = errors.New("Unknown market")
)

// Matcher and affordability rejection reasons. These travel inside
// Execution.Reason, never as Go errors.
const (
	ReasonNoLiquidity       = "no liquidity available"
	ReasonInsufficientDepth = "insufficient book depth"
	ReasonMissingLimitPrice = "limit order missing limitPrice"
	ReasonInsufficientCash  = "insufficient available cash"
	ReasonNoOpenPosition    = "no open position"
)
