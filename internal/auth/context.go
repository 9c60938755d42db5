package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxSubject ctxKey = iota
	ctxRole
)

func WithIdentity(ctx context.Context, subject, role string) context.Context {
	ctx = context.WithValue(ctx, ctxSubject, subject)
	ctx = context.WithValue(ctx, ctxRole, role)
	return ctx
}

func Subject(ctx context.Context) (string, error) {
	v := ctx.Value(ctxSubject)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("subject not in context")
}

func Role(ctx context.Context) (string, error) {
	v := ctx.Value(ctxRole)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("role not in context")
}
