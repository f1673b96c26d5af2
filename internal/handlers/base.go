package handlers

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/thistle/pkg/context"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// GetSellerID reads seller_id from the query, falling back to the X-Seller-ID
// header carried in the request context. It returns 0 when neither is set.
func GetSellerID(c echo.Context) (int64, error) {
	raw := c.QueryParam("seller_id")
	if raw == "" {
		return appctx.GetSellerID(c.Request().Context()), nil
	}

	sellerID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || sellerID <= 0 {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, "invalid seller_id: must be a positive integer")
	}
	return sellerID, nil
}

// RequireSellerID is GetSellerID for endpoints that are always seller scoped.
func RequireSellerID(c echo.Context) (int64, error) {
	sellerID, err := GetSellerID(c)
	if err != nil {
		return 0, err
	}
	if sellerID == 0 {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, "seller_id is required")
	}
	return sellerID, nil
}

// QueryInt parses an optional positive integer query parameter, clamped to max.
func QueryInt(c echo.Context, name string, fallback, max int) int {
	value, err := strconv.Atoi(c.QueryParam(name))
	if err != nil || value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

// Bind decodes and validates the request body.
func Bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}
