package shared

import "sync/atomic"

// Token identifies one asynchronous run. Tokens issued by the same Generation
// increase monotonically; zero is never issued.
type Token uint64

// Generation issues tokens and answers whether a token is still the latest.
// A result carrying a stale token must be discarded rather than applied.
type Generation struct {
	latest atomic.Uint64
}

// Next issues a new token, superseding every earlier one.
func (g *Generation) Next() Token {
	return Token(g.latest.Add(1))
}

// Latest returns the most recently issued token.
func (g *Generation) Latest() Token {
	return Token(g.latest.Load())
}

// IsLatest reports whether t is the most recently issued token.
func (g *Generation) IsLatest(t Token) bool {
	return t != 0 && Token(g.latest.Load()) == t
}
