package hook

import "context"

type managerKey struct{}

// WithManager returns ctx carrying m. Providers run these hooks in
// addition to their own for calls made with ctx.
func WithManager(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, managerKey{}, m)
}

// FromContext returns the manager attached by WithManager, or nil.
func FromContext(ctx context.Context) *Manager {
	m, _ := ctx.Value(managerKey{}).(*Manager)
	return m
}
