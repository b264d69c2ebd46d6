package curator

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenEstimator estimates model-input tokens. It prefers a real BPE encoding
// and falls back to the chars/4 heuristic when the encoding is unavailable
// (offline environments cannot fetch the BPE ranks).
type TokenEstimator struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenEstimator creates an estimator. Encoding setup is deferred to the
// first estimate so construction never blocks.
func NewTokenEstimator() *TokenEstimator {
	return &TokenEstimator{}
}

// Estimate returns the token estimate for s. Always >= 0.
func (e *TokenEstimator) Estimate(s string) int {
	if s == "" {
		return 0
	}
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			e.enc = enc
		}
	})
	if e.enc != nil {
		return len(e.enc.Encode(s, nil, nil))
	}
	return (len(s) + 3) / 4
}
