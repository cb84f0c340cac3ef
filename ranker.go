package rankkey

import "fmt"

var defaultRanker = NewRanker(nil, nil)

// Ranker generates keys according to a Config. It holds no per-context state
// and is safe for concurrent use as long as its Jitter is.
type Ranker struct {
	cfg    Config
	jitter Jitter
}

// NewRanker returns a Ranker for cfg. A nil cfg means DefaultConfig and a nil
// jitter means NoJitter.
func NewRanker(cfg *Config, j Jitter) *Ranker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if j == nil {
		j = NoJitter{}
	}
	return &Ranker{cfg: *cfg, jitter: j}
}

// Config returns a copy of the ranker's configuration.
func (r *Ranker) Config() Config { return r.cfg }

// Between is the configured form of the package-level Between.
func (r *Ranker) Between(lower, upper Key) (Key, error) {
	if lower == upper {
		return r.Next(lower)
	}
	return between(lower, upper, r.jitter, r.cfg.JitterRange)
}

// Next is the configured form of the package-level Next.
func (r *Ranker) Next(k Key) (Key, error) {
	return next(k, r.cfg.StepSize)
}

// Prev is the configured form of the package-level Prev.
func (r *Ranker) Prev(k Key) (Key, error) {
	return prev(k, r.cfg.StepSize)
}

// Before returns a key for the top of a context whose first key is first.
func (r *Ranker) Before(first Key) (Key, error) {
	if bottom := MinIn(first.bucket); first.Compare(bottom) <= 0 {
		return Key{}, fmt.Errorf("%w: nothing before %s", ErrOutOfRange, first)
	}
	if r.cfg.EdgeStrategy == EdgeStep {
		return r.Prev(first)
	}
	return r.Between(MinIn(first.bucket), first)
}

// After returns a key for the bottom of a context whose last key is last.
func (r *Ranker) After(last Key) (Key, error) {
	if top := MaxIn(last.bucket); last.Compare(top) >= 0 {
		return Key{}, fmt.Errorf("%w: nothing after %s", ErrOutOfRange, last)
	}
	if r.cfg.EdgeStrategy == EdgeStep {
		return r.Next(last)
	}
	return r.Between(last, MaxIn(last.bucket))
}

// TooLong reports whether k has grown past MaxKeyLength. A non-positive
// MaxKeyLength disables the check.
func (r *Ranker) TooLong(k Key) bool {
	return r.cfg.MaxKeyLength > 0 && len(k.String()) > r.cfg.MaxKeyLength
}
