package api

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"ammengine/internal/amm"
)

// APIRespond is the envelope of every response.
type APIRespond struct {
	Result interface{} `json:"Result"`
	Error  *string     `json:"Error"`
	Code   string      `json:"Code,omitempty"`
}

var errBadRequest = errors.New("bad request")

func buildGinErrorRespond(err error) *APIRespond {
	errStr := err.Error()
	respond := APIRespond{
		Result: nil,
		Error:  &errStr,
		Code:   amm.ErrorKind(err),
	}
	if errors.Is(err, errBadRequest) {
		respond.Code = "bad_request"
	}
	return &respond
}

func respondOK(c *gin.Context, result interface{}) {
	c.JSON(http.StatusOK, APIRespond{Result: result})
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), buildGinErrorRespond(err))
}

func statusFor(err error) int {
	if errors.Is(err, errBadRequest) {
		return http.StatusBadRequest
	}
	switch amm.ErrorKind(err) {
	case "invalid_asset", "invalid_amount", "invalid_recipient":
		return http.StatusBadRequest
	case "pool_not_found", "program_not_found", "no_route_found":
		return http.StatusNotFound
	case "pool_exists", "program_exists":
		return http.StatusConflict
	case "pool_paused":
		return http.StatusLocked
	case "unauthorized":
		return http.StatusForbidden
	case "slippage_exceeded", "insufficient_shares", "insufficient_liquidity",
		"insufficient_stake", "division_by_zero", "stale_oracle_data":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// parseAmount reads a base-unit integer. An empty string is allowed only when optional is set.
func parseAmount(field, raw string, optional bool) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if optional {
			return nil, nil
		}
		return nil, badRequest("%s is required", field)
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, badRequest("%s must be a base-unit integer", field)
	}
	return v, nil
}

// parsePrice converts a decimal price such as "0.5" into PriceScale fixed point.
func parsePrice(raw string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return nil, badRequest("price must be a decimal number")
	}
	scaled := d.Shift(priceDecimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, badRequest("price has more than %d decimals", priceDecimals)
	}
	return scaled.BigInt(), nil
}

const priceDecimals = 18

// formatPrice renders a PriceScale fixed-point value as a decimal string.
func formatPrice(v *big.Int) string {
	if v == nil {
		return ""
	}
	return decimal.NewFromBigInt(v, -priceDecimals).String()
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
