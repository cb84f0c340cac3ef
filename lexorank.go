package rankkey

import (
	"fmt"
	"math"
	"strings"
)

// Bucket represents a logical grouping or namespace for rank keys.
// It is rendered as a single decimal digit, so only buckets 0 through 9
// are valid. Keys in different buckets never interleave: every key in
// bucket 0 sorts before every key in bucket 1.
type Bucket uint8

// MaxBucket is the highest bucket a key may carry.
const MaxBucket Bucket = 9

const (
	bucketSep  = '|'
	decimalSep = ':'
	valueWidth = 6
)

// Key is a lexicographically sortable rank within a bucket.
//
// The string form is "<bucket>|<value>:<decimal>" where value is exactly six
// base36 digits and decimal is an optional run of base36 digits that never
// ends in '0'. Because value has a fixed width and decimal carries no
// trailing zeros, byte-wise comparison of the string form matches the
// numeric order of the keys.
//
// The zero Key is not valid; obtain keys from Parse, Min, Max, Middle or the
// generation functions.
type Key struct {
	bucket  Bucket
	value   string
	decimal string
}

var (
	minKey    = Key{bucket: 0, value: "000000"}
	maxKey    = Key{bucket: 0, value: "zzzzzz"}
	middleKey = Key{bucket: 0, value: "hzzzzz"}
)

// DefaultUnranked is the key assumed for an item that has no rank entry in a
// context. It sits low in the key space without being the true minimum, so
// unranked items settle near the top of a view while explicit moves to the
// very top can still land above them.
var DefaultUnranked = Key{bucket: 0, value: "100000"}

// Min returns the lower sentinel of bucket 0. No generated key is ever equal to it.
func Min() Key { return minKey }

// Max returns the upper sentinel of bucket 0. No generated key is ever equal to it.
func Max() Key { return maxKey }

// Middle returns the canonical default key. It is the fallback whenever a
// stored neighbor cannot be used.
func Middle() Key { return middleKey }

// MinIn returns the lower sentinel of bucket b.
func MinIn(b Bucket) Key { return Key{bucket: b, value: minKey.value} }

// MaxIn returns the upper sentinel of bucket b.
func MaxIn(b Bucket) Key { return Key{bucket: b, value: maxKey.value} }

// String returns the persisted form of the key, e.g. "0|hzzzzz:" or "0|i00000:8".
func (k Key) String() string {
	var sb strings.Builder
	sb.Grow(3 + len(k.value) + len(k.decimal))
	sb.WriteByte('0' + byte(k.bucket))
	sb.WriteByte(bucketSep)
	sb.WriteString(k.value)
	sb.WriteByte(decimalSep)
	sb.WriteString(k.decimal)
	return sb.String()
}

// Bucket returns the bucket identifier for this key.
func (k Key) Bucket() Bucket { return k.bucket }

// Value returns the six-digit base36 integer part of the key.
func (k Key) Value() string { return k.value }

// Decimal returns the sublevel digits of the key. It is empty for keys
// that sit exactly on an integer value.
func (k Key) Decimal() string { return k.decimal }

// IsZero reports whether k is the zero Key rather than a parsed or generated one.
func (k Key) IsZero() bool { return k.value == "" }

// Compare returns -1, 0 or +1 depending on whether k sorts before, equal to,
// or after other. It agrees with strings.Compare on the string forms.
func (k Key) Compare(other Key) int {
	return strings.Compare(k.String(), other.String())
}

// Less reports whether k sorts strictly before other.
func (k Key) Less(other Key) bool { return k.Compare(other) < 0 }

// Approx converts the key to a float64 in [0, 1). The key space is far larger
// than a float64 can represent, so this is only useful for display and
// diagnostics.
func (k Key) Approx() float64 {
	rv := 0.0
	for i, d := range k.digits() {
		p := strings.IndexRune(base36Digits, d)
		rv += float64(p) / math.Pow(float64(len(base36Digits)), float64(i+1))
	}
	return rv
}

// digits returns value and decimal as one fraction string with trailing
// zeros removed. Two keys in the same bucket compare the same way their
// digit strings do.
func (k Key) digits() string {
	return strings.TrimRight(k.value+k.decimal, "0")
}

// fromDigits is the inverse of digits.
func fromDigits(b Bucket, digits string) Key {
	if len(digits) < valueWidth {
		digits += strings.Repeat("0", valueWidth-len(digits))
	}
	return Key{bucket: b, value: digits[:valueWidth], decimal: digits[valueWidth:]}
}

// Parse reads a key in its persisted form. It fails with ErrMalformedKey when
// the string does not match "<bucket>|<6 base36 digits>:<base36 digits>", the
// sublevel ends in '0' or the key sorts after the maximum of its bucket.
func Parse(s string) (Key, error) {
	// shortest valid form is "0|000000:"
	if len(s) < valueWidth+3 {
		return Key{}, malformed(s, "too short")
	}
	if s[0] < '0' || s[0] > '0'+byte(MaxBucket) {
		return Key{}, malformed(s, "invalid bucket")
	}
	if s[1] != bucketSep {
		return Key{}, malformed(s, "missing bucket separator")
	}
	value := s[2 : 2+valueWidth]
	if !isBase36(value) {
		return Key{}, malformed(s, "invalid value digits")
	}
	if s[2+valueWidth] != decimalSep {
		return Key{}, malformed(s, "missing sublevel separator")
	}
	decimal := s[3+valueWidth:]
	if !isBase36(decimal) {
		return Key{}, malformed(s, "invalid sublevel digits")
	}
	if strings.HasSuffix(decimal, "0") {
		return Key{}, malformed(s, "sublevel has trailing zero")
	}
	if value == maxKey.value && decimal != "" {
		return Key{}, malformed(s, "sorts after the bucket maximum")
	}
	return Key{bucket: Bucket(s[0] - '0'), value: value, decimal: decimal}, nil
}

// MustParse is like Parse but panics on malformed input. Use it for constants.
func MustParse(s string) Key {
	k, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return k
}

func isBase36(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}

func malformed(s, reason string) error {
	return fmt.Errorf("%w: %q: %s", ErrMalformedKey, s, reason)
}
