package events

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ChizhovVadim/vibeid/internal/domain"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEvents(t *testing.T) {
	var input = "# subject events\n0.5, -1, 2e-3, P01\n1,2,3,P02\n"
	result, err := ReadEvents(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, domain.Event{Signal: []float64{0.5, -1, 0.002}, Label: "P01"}, result[0])
	assert.Equal(t, "P02", result[1].Label)
}

func TestReadEventsRejectsBadRows(t *testing.T) {
	for _, input := range []string{
		"1,2,x,P01\n",
		"P01\n",
		"1,2,3, \n",
	} {
		_, err := ReadEvents(strings.NewReader(input))
		assert.True(t, errors.Is(err, ErrMalformedEvent), "input %q: %v", input, err)
	}
}

func TestWriteEventsReadBack(t *testing.T) {
	var source = []domain.Event{
		{Signal: []float64{0.1, 1e-9, -3}, Label: "7"},
		{Signal: []float64{4, 5, 6}, Label: "12"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteEvents(&buf, source))
	result, err := ReadEvents(&buf)
	require.NoError(t, err)
	assert.Equal(t, source, result)
}

func TestCheckLength(t *testing.T) {
	var list = []domain.Event{
		{Signal: make([]float64, 4), Label: "a"},
		{Signal: make([]float64, 4), Label: "b"},
		{Signal: make([]float64, 3), Label: "c"},
	}
	assert.NoError(t, CheckLength(list[:2], 0))
	assert.NoError(t, CheckLength(list[:2], 4))
	assert.True(t, errors.Is(CheckLength(list, 0), ErrMalformedEvent))
	assert.True(t, errors.Is(CheckLength(list[:1], 5), ErrMalformedEvent))
	assert.NoError(t, CheckLength(nil, 5))
}

func TestReadTrace(t *testing.T) {
	trace, err := ReadTrace(strings.NewReader("# header\n1\n\n-2.5\n3e1\n"))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -2.5, 30}, trace)

	_, err = ReadTrace(strings.NewReader("1\nabc\n"))
	assert.Error(t, err)
}
