package repositories

import "fmt"

// LedgerErrorCode enumerates repository error causes for stock and coupon operations.
type LedgerErrorCode string

const (
	// LedgerErrorUnknown represents an unspecified failure.
	LedgerErrorUnknown LedgerErrorCode = "ledger_unknown"
	// LedgerErrorInsufficientStock indicates requested quantity exceeds availability.
	LedgerErrorInsufficientStock LedgerErrorCode = "ledger_insufficient_stock"
	// LedgerErrorGoodsNotFound indicates the goods row does not exist.
	LedgerErrorGoodsNotFound LedgerErrorCode = "ledger_goods_not_found"
	// LedgerErrorSKUNotFound indicates the SKU variant does not exist.
	LedgerErrorSKUNotFound LedgerErrorCode = "ledger_sku_not_found"
	// LedgerErrorGoodsClosed indicates the goods row is not purchasable.
	LedgerErrorGoodsClosed LedgerErrorCode = "ledger_goods_closed"
	// LedgerErrorCouponNotFound indicates no coupon exists under the code.
	LedgerErrorCouponNotFound LedgerErrorCode = "ledger_coupon_not_found"
	// LedgerErrorCouponExhausted indicates the coupon has no remaining uses.
	LedgerErrorCouponExhausted LedgerErrorCode = "ledger_coupon_exhausted"
	// LedgerErrorCouponNotApplicable indicates the coupon does not cover the goods or minimum.
	LedgerErrorCouponNotApplicable LedgerErrorCode = "ledger_coupon_not_applicable"
)

// LedgerError wraps stock and coupon failures with machine readable codes.
type LedgerError struct {
	Op      string
	Code    LedgerErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *LedgerError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *LedgerError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewLedgerError constructs a typed ledger error.
func NewLedgerError(code LedgerErrorCode, message string, err error) *LedgerError {
	if message == "" {
		message = string(code)
	}
	return &LedgerError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
