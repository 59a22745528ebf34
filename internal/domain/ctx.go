package domain

type ctxKey int

// RequesterIdCtxKey carries the identity asserted by the request, when any.
const RequesterIdCtxKey ctxKey = iota
