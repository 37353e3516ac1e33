package users

import "context"

// RequestMeta describes where a mutation came from, for the audit trail.
type RequestMeta struct {
	IP        string
	UserAgent string
}

type metaKey struct{}

func WithRequestMeta(ctx context.Context, m RequestMeta) context.Context {
	return context.WithValue(ctx, metaKey{}, m)
}

func RequestMetaFrom(ctx context.Context) RequestMeta {
	m, _ := ctx.Value(metaKey{}).(RequestMeta)
	return m
}
