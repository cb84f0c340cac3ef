package ordering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaulted/rankkey"
)

func TestGenerate(t *testing.T) {
	assert := assert.New(t)
	r := rankkey.NewRanker(nil, nil)

	test := func(n Neighbors, want string) {
		t.Helper()
		got, err := Generate(r, n)
		if assert.NoError(err) {
			assert.Equal(want, got.String())
		}
	}

	test(Neighbors{}, "0|hzzzzz:")
	test(Neighbors{Upper: "0|100000:", HasUpper: true}, "0|0i0000:")
	test(Neighbors{Lower: "0|r00000:", HasLower: true}, "0|v00000:")
	test(Neighbors{Lower: "0|100000:", HasLower: true, Upper: "0|100002:", HasUpper: true}, "0|100001:")
	test(Neighbors{Lower: "0|100000:", HasLower: true, Upper: "0|100000:", HasUpper: true}, "0|100008:")
}

func TestGenerateErrors(t *testing.T) {
	r := rankkey.NewRanker(nil, nil)

	_, err := Generate(r, Neighbors{Lower: "junk", HasLower: true})
	assert.ErrorIs(t, err, rankkey.ErrMalformedKey)

	_, err = Generate(r, Neighbors{Lower: "0|200000:", HasLower: true, Upper: "0|100000:", HasUpper: true})
	assert.ErrorIs(t, err, rankkey.ErrInvertedInterval)

	_, err = Generate(r, Neighbors{Upper: rankkey.Min().String(), HasUpper: true})
	assert.ErrorIs(t, err, rankkey.ErrOutOfRange)

	_, err = Generate(r, Neighbors{Lower: "0|zzzzzz:5", HasLower: true})
	assert.ErrorIs(t, err, rankkey.ErrMalformedKey)
}

func TestCollectionNeighbors(t *testing.T) {
	coll := NewCollection(testScope, []Entry{
		{ItemID: "a", Rank: "0|200000:"},
		{ItemID: "b", Rank: "0|300000:"},
		{ItemID: "c", Rank: "0|400000:"},
		{ItemID: "a", Rank: "0|900000:"},
		{ItemID: "u"},
	}, rankkey.Key{})
	require.Equal(t, []string{"u", "a", "b", "c"}, coll.ItemIDs())

	for i, e := range coll.Entries() {
		assert.Equal(t, testScope, e.Scope(), "entry %d is re-scoped", i)
	}

	nb, err := coll.Neighbors(1, 3)
	require.NoError(t, err)
	assert.Equal(t, Neighbors{Lower: "0|400000:", HasLower: true}, nb)

	nb, err = coll.Neighbors(3, 0)
	require.NoError(t, err)
	assert.Equal(t, Neighbors{Upper: rankkey.DefaultUnranked.String(), HasUpper: true}, nb)

	nb, err = coll.Neighbors(0, 1)
	require.NoError(t, err)
	assert.Equal(t, Neighbors{Lower: "0|200000:", HasLower: true, Upper: "0|300000:", HasUpper: true}, nb)

	_, err = coll.Neighbors(0, 4)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	assert.Equal(t, 2, coll.IndexOf("b"))
	assert.Equal(t, -1, coll.IndexOf("zz"))
}

func TestCollectionCustomUnranked(t *testing.T) {
	coll := NewCollection(testScope, []Entry{
		{ItemID: "a", Rank: "0|200000:"},
		{ItemID: "u"},
	}, rankkey.Max())
	assert.Equal(t, []string{"a", "u"}, coll.ItemIDs())
}
