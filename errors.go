package rankkey

import "errors"

var (
	// ErrMalformedKey is returned when a stored or supplied key does not parse.
	ErrMalformedKey = errors.New("malformed rank key")

	// ErrInvertedInterval is returned by Between when lower sorts after upper.
	ErrInvertedInterval = errors.New("lower rank key sorts after upper")

	// ErrBucketMismatch is returned when two keys from different buckets are
	// used as the bounds of one interval.
	ErrBucketMismatch = errors.New("rank keys belong to different buckets")

	// ErrOutOfRange is returned when no key exists past a sentinel, e.g. Next(Max()).
	ErrOutOfRange = errors.New("rank key out of range")
)
