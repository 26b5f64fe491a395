package pipeline

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"pol-gateway/internal/domain"
)

// TransferRequest sends native POL to a recipient.
type TransferRequest struct {
	Recipient      string          `json:"recipient_address" validate:"required,eth_addr"`
	AmountPOL      decimal.Decimal `json:"amount_in_pol" validate:"required,gt=0"`
	IdempotencyKey string          `json:"idempotency_key" validate:"omitempty,max=128"`
}

// BuyRequest swaps stablecoin for POL.
type BuyRequest struct {
	AmountUSD      decimal.Decimal `json:"amount_in_usd" validate:"required,gt=0"`
	IdempotencyKey string          `json:"idempotency_key" validate:"omitempty,max=128"`
}

// SellRequest swaps POL for stablecoin.
type SellRequest struct {
	AmountPOL      decimal.Decimal `json:"amount_in_pol" validate:"required,gt=0"`
	IdempotencyKey string          `json:"idempotency_key" validate:"omitempty,max=128"`
}

// SwapRequest swaps POL for an arbitrary token.
type SwapRequest struct {
	TokenOut       string          `json:"token_out" validate:"required,eth_addr"`
	AmountPOL      decimal.Decimal `json:"amount_in_pol" validate:"required,gt=0"`
	IdempotencyKey string          `json:"idempotency_key" validate:"omitempty,max=128"`
}

// RebalanceRequest supplies liquidity for a token pair. Amounts are whole
// tokens with 18 decimals.
type RebalanceRequest struct {
	TokenA         string          `json:"token_a" validate:"required,eth_addr"`
	TokenB         string          `json:"token_b" validate:"required,eth_addr,nefield=TokenA"`
	AmountA        decimal.Decimal `json:"amount_a" validate:"required,gt=0"`
	AmountB        decimal.Decimal `json:"amount_b" validate:"required,gt=0"`
	IdempotencyKey string          `json:"idempotency_key" validate:"omitempty,max=128"`
}

// Result is the outcome of a pipeline operation.
type Result struct {
	RecordID string `json:"id,omitempty"`
	TxHash   string `json:"transaction_hash,omitempty"`

	// Replayed is set when the hash came from the idempotency store.
	Replayed bool `json:"replayed,omitempty"`

	// Executed is false only for an auto-rebalance that did not trigger.
	Executed bool                      `json:"executed"`
	Decision *domain.RebalanceDecision `json:"insights,omitempty"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	// decimals validate as their float value so required/gt apply
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// check validates req and maps failures to ErrValidation.
func (p *Pipeline) check(req any) error {
	err := p.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "gt":
		return fe.Field() + " must be greater than " + fe.Param()
	case "eth_addr":
		return fe.Field() + " must be a 0x-prefixed 20-byte hex address"
	case "nefield":
		return fe.Field() + " must differ from " + fe.Param()
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	default:
		return fe.Field() + " is invalid"
	}
}
