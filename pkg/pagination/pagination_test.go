package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	p, err := Parse("", "")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = Parse("3", "10")
	require.NoError(t, err)
	assert.Equal(t, &Params{Page: 3, Limit: 10, Offset: 20}, p)

	p, err = Parse("0", "500")
	require.NoError(t, err)
	assert.Equal(t, &Params{Page: 1, Limit: MaxLimit, Offset: 0}, p)

	p, err = Parse("2", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, p.Limit)

	_, err = Parse("two", "")
	assert.Error(t, err)
	_, err = Parse("", "x")
	assert.Error(t, err)
}

func TestWindow(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	assert.Equal(t, items, Window(items, nil))
	assert.Equal(t, []int{3, 4}, Window(items, &Params{Page: 2, Limit: 2, Offset: 2}))
	assert.Equal(t, []int{5}, Window(items, &Params{Page: 3, Limit: 2, Offset: 4}))
	assert.Empty(t, Window(items, &Params{Page: 4, Limit: 2, Offset: 6}))
}

func TestCalculateTotalPages(t *testing.T) {
	assert.Equal(t, 0, CalculateTotalPages(0, 10))
	assert.Equal(t, 1, CalculateTotalPages(10, 10))
	assert.Equal(t, 2, CalculateTotalPages(11, 10))
	assert.Equal(t, 0, CalculateTotalPages(5, 0))
}
