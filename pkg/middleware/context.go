package middleware

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/thistle/pkg/context"
)

// HeaderSellerID scopes ops requests to one seller.
const HeaderSellerID = "X-Seller-ID"

func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := appctx.SetRequestID(req.Context(), requestID)
			if sellerID, err := strconv.ParseInt(req.Header.Get(HeaderSellerID), 10, 64); err == nil && sellerID > 0 {
				ctx = appctx.SetSellerID(ctx, sellerID)
			}

			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
