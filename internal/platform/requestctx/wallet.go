// Package requestctx carries request-scoped identity through context.
package requestctx

import "context"

// walletContextKey is the context key for the authenticated wallet address.
type walletContextKey struct{}

// WithWallet stores a lowercase wallet address in context.
func WithWallet(ctx context.Context, wallet string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, walletContextKey{}, wallet)
}

// WalletFromContext returns the wallet address stored in context, or "" when
// the request is anonymous.
func WalletFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(walletContextKey{}).(string)
	return value
}
