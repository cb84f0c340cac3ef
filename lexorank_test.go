package rankkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	assert := assert.New(t)

	test := func(s string, bucket Bucket, value, decimal string) {
		k, err := Parse(s)
		assert.NoError(err, s)
		assert.Equal(bucket, k.Bucket(), s)
		assert.Equal(value, k.Value(), s)
		assert.Equal(decimal, k.Decimal(), s)
		assert.Equal(s, k.String())
	}

	test("0|hzzzzz:", 0, "hzzzzz", "")
	test("0|000000:", 0, "000000", "")
	test("0|zzzzzz:", 0, "zzzzzz", "")
	test("2|i00007:", 2, "i00007", "")
	test("9|a00000:0i", 9, "a00000", "0i")
}

func TestParseMalformed(t *testing.T) {
	assert := assert.New(t)

	test := func(s string) {
		k, err := Parse(s)
		assert.ErrorIs(err, ErrMalformedKey, s)
		assert.True(k.IsZero(), s)
	}

	test("")
	test("0|hzzzz:")
	test("0|hzzzzz")
	test("a|hzzzzz:")
	test("0-hzzzzz:")
	test("0|HZZZZZ:")
	test("0|hzzzzz;")
	test("0|hzzzzz:1!")
	test("0|hzzzzz:10")
	test("0|hzz zz:")
	test("0|zzzzzz:5")
	test("3|zzzzzz:z")
}

func TestSentinels(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("0|000000:", Min().String())
	assert.Equal("0|zzzzzz:", Max().String())
	assert.Equal("0|hzzzzz:", Middle().String())
	assert.Equal("0|100000:", DefaultUnranked.String())
	assert.Equal("3|000000:", MinIn(3).String())
	assert.Equal("3|zzzzzz:", MaxIn(3).String())

	assert.True(Min().Less(DefaultUnranked))
	assert.True(DefaultUnranked.Less(Middle()))
	assert.True(Middle().Less(Max()))
	assert.True(MaxIn(0).Less(MinIn(1)))

	for _, k := range []Key{Min(), Max(), Middle(), DefaultUnranked} {
		back, err := Parse(k.String())
		assert.NoError(err)
		assert.Equal(k, back)
	}
}

func TestCompareMatchesStrings(t *testing.T) {
	assert := assert.New(t)

	test := func(a, b string, exp int) {
		assert.Equal(exp, MustParse(a).Compare(MustParse(b)), "%s vs %s", a, b)
	}

	test("0|hzzzzz:", "0|hzzzzz:", 0)
	test("0|hzzzzz:", "0|hzzzzz:i", -1)
	test("0|hzzzzz:z", "0|i00000:", -1)
	test("0|i00000:", "0|hzzzzz:zz", 1)
	test("0|zzzzzz:", "1|000000:", -1)
	test("0|a00000:1", "0|a00000:01", 1)
}

func TestApprox(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(0.0, Min().Approx())
	assert.Equal(0.5, MustParse("0|i00000:").Approx())
	assert.InDelta(1.0/36.0, MustParse("0|100000:").Approx(), 1e-12)
	assert.Less(Max().Approx(), 1.0)
	assert.Less(MustParse("0|hzzzzz:").Approx(), MustParse("0|hzzzzz:i").Approx())
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse("nope") })
}
