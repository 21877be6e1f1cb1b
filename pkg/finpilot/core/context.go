package core

type ctxKey string

const (
	CtxKeyUsername ctxKey = ctxKey("username")
	CtxKeyJobID    ctxKey = ctxKey("jobId")
)
