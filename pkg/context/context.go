package context

import "context"

type ContextKey string

var (
	RequestIDKey = ContextKey("X-Request-Id")
	SellerIDKey  = ContextKey("X-Seller-Id")
	RunIDKey     = ContextKey("X-Sync-Run-Id")
)

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	value, _ := ctx.Value(RequestIDKey).(string)
	return value
}

func SetSellerID(ctx context.Context, sellerID int64) context.Context {
	return context.WithValue(ctx, SellerIDKey, sellerID)
}

// GetSellerID returns the seller the current run or request acts for, or 0.
func GetSellerID(ctx context.Context) int64 {
	value, _ := ctx.Value(SellerIDKey).(int64)
	return value
}

func SetRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

func GetRunID(ctx context.Context) string {
	value, _ := ctx.Value(RunIDKey).(string)
	return value
}
