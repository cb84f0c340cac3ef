package rankkey

import (
	"fmt"
	"strconv"
	"strings"
)

const base36Digits = "0123456789abcdefghijklmnopqrstuvwxyz"

// valueSpace is the number of distinct six-digit base36 values.
const valueSpace uint64 = 36 * 36 * 36 * 36 * 36 * 36

// DefaultStep is the distance Next and Prev move along the integer part of a key.
const DefaultStep uint64 = 8

// Between returns a key that sorts strictly between lower and upper.
//
// When lower equals upper there is no key strictly between them; Between then
// behaves like Next(lower) and returns a key after both. Bounds in different
// buckets fail with ErrBucketMismatch, and lower sorting after upper fails with
// ErrInvertedInterval.
func Between(lower, upper Key) (Key, error) {
	return defaultRanker.Between(lower, upper)
}

// Next returns a key that sorts strictly after k and before Max.
func Next(k Key) (Key, error) {
	return next(k, DefaultStep)
}

// Prev returns a key that sorts strictly before k and after Min.
func Prev(k Key) (Key, error) {
	return prev(k, DefaultStep)
}

func between(lower, upper Key, j Jitter, jitterRange int) (Key, error) {
	if lower.IsZero() || upper.IsZero() {
		return Key{}, fmt.Errorf("%w: zero key", ErrMalformedKey)
	}
	if lower.bucket != upper.bucket {
		return Key{}, fmt.Errorf("%w: %s, %s", ErrBucketMismatch, lower, upper)
	}
	if lower.Compare(upper) >= 0 {
		return Key{}, fmt.Errorf("%w: %s >= %s", ErrInvertedInterval, lower, upper)
	}
	return fromDigits(lower.bucket, midpoint(lower.digits(), upper.digits(), j, jitterRange)), nil
}

func next(k Key, step uint64) (Key, error) {
	if k.IsZero() {
		return Key{}, fmt.Errorf("%w: zero key", ErrMalformedKey)
	}
	top := MaxIn(k.bucket)
	if k.Compare(top) >= 0 {
		return Key{}, fmt.Errorf("%w: nothing after %s", ErrOutOfRange, k)
	}
	v := parseValue(k.value)
	if step > 0 && v+step < valueSpace-1 {
		return Key{bucket: k.bucket, value: formatValue(v + step)}, nil
	}
	return between(k, top, NoJitter{}, 0)
}

func prev(k Key, step uint64) (Key, error) {
	if k.IsZero() {
		return Key{}, fmt.Errorf("%w: zero key", ErrMalformedKey)
	}
	bottom := MinIn(k.bucket)
	if k.Compare(bottom) <= 0 {
		return Key{}, fmt.Errorf("%w: nothing before %s", ErrOutOfRange, k)
	}
	v := parseValue(k.value)
	if step > 0 && v > step {
		return Key{bucket: k.bucket, value: formatValue(v - step)}, nil
	}
	return between(bottom, k, NoJitter{}, 0)
}

// midpoint returns a digit string strictly between a and b, read as base36
// fractions. a == "" means zero, b == "" means one. Neither input may end in
// '0' and the result never does.
func midpoint(a, b string, j Jitter, jitterRange int) string {
	if b != "" {
		// strip the longest common prefix, padding a with zeros.
		// b can't end before a while traversing the common prefix.
		i := 0
		for ; i < len(b); i++ {
			c := byte('0')
			if len(a) > i {
				c = a[i]
			}
			if c != b[i] {
				break
			}
		}
		if i > 0 {
			if i > len(a) {
				return b[0:i] + midpoint("", b[i:], j, jitterRange)
			}
			return b[0:i] + midpoint(a[i:], b[i:], j, jitterRange)
		}
	}

	// first digits (or lack of digit) are different
	digitA := 0
	if a != "" {
		digitA = strings.IndexByte(base36Digits, a[0])
	}
	digitB := len(base36Digits)
	if b != "" {
		digitB = strings.IndexByte(base36Digits, b[0])
	}
	if digitB-digitA > 1 {
		center := digitA + 1 + (digitB-digitA-1)/2
		lo := max(digitA+1, center-j.IntnRange(0, jitterRange))
		hi := min(digitB-1, center+j.IntnRange(0, jitterRange))
		pick := lo
		if hi > lo {
			pick = j.IntnRange(lo, hi)
		}
		return string(base36Digits[pick])
	}

	// first digits are consecutive
	if len(b) > 1 {
		high := strings.IndexByte(base36Digits, b[1]) - 1
		if jitterRange <= 0 || high < 1 {
			return b[0:1]
		}
		// b[0] followed by a non-zero digit below b[1] stays under b
		pick := j.IntnRange(1, min(high, 1+jitterRange))
		return b[0:1] + string(base36Digits[pick])
	}

	// b is empty or a single digit: take a's first digit and continue
	// towards the top of the next sublevel, e.g. midpoint("4z", "5")
	// becomes "4" + midpoint("z", "") = "4zi".
	sa := ""
	if len(a) > 0 {
		sa = a[1:]
	}
	return string(base36Digits[digitA]) + midpoint(sa, "", j, jitterRange)
}

// NKeysBetween returns n ascending keys strictly between lower and upper.
func NKeysBetween(lower, upper Key, n uint) ([]Key, error) {
	if n == 0 {
		return []Key{}, nil
	}
	c, err := between(lower, upper, NoJitter{}, 0)
	if err != nil {
		return nil, err
	}
	if n == 1 {
		return []Key{c}, nil
	}
	mid := n / 2
	result := make([]Key, 0, n)
	left, err := NKeysBetween(lower, c, mid)
	if err != nil {
		return nil, err
	}
	result = append(result, left...)
	result = append(result, c)
	right, err := NKeysBetween(c, upper, n-mid-1)
	if err != nil {
		return nil, err
	}
	result = append(result, right...)
	return result, nil
}

// Spread returns n evenly spaced, ascending keys with empty sublevels in
// bucket b. It is used to rewrite a whole context when keys have grown long.
func Spread(b Bucket, n int) ([]Key, error) {
	if b > MaxBucket {
		return nil, fmt.Errorf("%w: bucket %d", ErrOutOfRange, b)
	}
	if n < 0 || uint64(n)+1 >= valueSpace {
		return nil, fmt.Errorf("%w: cannot spread %d keys", ErrOutOfRange, n)
	}
	gap := valueSpace / uint64(n+1)
	keys := make([]Key, n)
	for i := range keys {
		keys[i] = Key{bucket: b, value: formatValue(gap * uint64(i+1))}
	}
	return keys, nil
}

// parseValue decodes a validated six-digit value.
func parseValue(v string) uint64 {
	n, err := strconv.ParseUint(v, 36, 64)
	if err != nil {
		panic(fmt.Sprintf("rankkey: invalid value %q", v))
	}
	return n
}

func formatValue(n uint64) string {
	s := strconv.FormatUint(n, 36)
	if len(s) < valueWidth {
		s = strings.Repeat("0", valueWidth-len(s)) + s
	}
	return s
}
