package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeReplacesInPlace(t *testing.T) {
	items := []item{{ID: "a", Name: "one"}, {ID: "b", Name: "two"}, {ID: "c", Name: "three"}}

	got := Merge(items, item{ID: "b", Name: "two (updated)"})

	assert.Equal(t, []item{{ID: "a", Name: "one"}, {ID: "b", Name: "two (updated)"}, {ID: "c", Name: "three"}}, got)
	assert.Equal(t, "two", items[1].Name, "input must not be modified")
}

func TestMergeAppendsMissing(t *testing.T) {
	items := []item{{ID: "a"}}

	got := Merge(items, item{ID: "z"})

	assert.Equal(t, []item{{ID: "a"}, {ID: "z"}}, got)
}

func TestMergeIsIdempotent(t *testing.T) {
	items := []item{{ID: "a"}, {ID: "b"}}
	fetched := item{ID: "b", Name: "fresh"}

	once := Merge(items, fetched)
	twice := Merge(once, fetched)

	assert.Equal(t, once, twice)

	appendedOnce := Merge(items, item{ID: "c"})
	appendedTwice := Merge(appendedOnce, item{ID: "c"})
	assert.Equal(t, appendedOnce, appendedTwice)
}

func TestMergeCommutesForDistinctIDs(t *testing.T) {
	base := []item{{ID: "a"}, {ID: "b"}}
	x := item{ID: "a", Name: "x"}
	y := item{ID: "b", Name: "y"}

	assert.Equal(t, Merge(Merge(base, x), y), Merge(Merge(base, y), x))
}

func TestCollectionRemoveReindexes(t *testing.T) {
	c := newCollection([]item{{ID: "a"}, {ID: "b"}, {ID: "c"}})

	assert.True(t, c.remove("a"))
	assert.False(t, c.remove("a"))

	got, ok := c.get("c")
	assert.True(t, ok)
	assert.Equal(t, "c", got.ID)
	assert.Equal(t, []item{{ID: "b"}, {ID: "c"}}, c.snapshot())
}
