package presto

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowDecoder_DecodeRow(t *testing.T) {
	decoder := NewRowDecoder(doublingDecoder{}, VarbinaryDecoder{}, DefaultDecoder{})

	t.Run("decodes positionally", func(t *testing.T) {
		row, err := decoder.DecodeRow([]any{21, "ZWg/", "as is"})
		require.NoError(t, err)
		assert.Equal(t, DecodedRow{42, []byte("eh?"), "as is"}, row)
	})

	t.Run("nulls", func(t *testing.T) {
		row, err := decoder.DecodeRow([]any{nil, nil, nil})
		require.NoError(t, err)
		assert.Equal(t, DecodedRow{nil, nil, nil}, row)
	})

	t.Run("too few values", func(t *testing.T) {
		raw := []any{1, "ZWg/"}
		_, err := decoder.DecodeRow(raw)
		var dataErr *DataError
		require.ErrorAs(t, err, &dataErr)
		assert.Equal(t, 3, dataErr.Expected)
		assert.Equal(t, 2, dataErr.Actual)
		assert.Equal(t, raw, dataErr.Row)
	})

	t.Run("cell error fails the row", func(t *testing.T) {
		_, err := decoder.DecodeRow([]any{1, 5, "x"})
		assert.ErrorContains(t, err, "column 1: varbinary")
		var dataErr *DataError
		assert.False(t, errors.As(err, &dataErr))
	})
}

func TestRowDecoder_NoColumns(t *testing.T) {
	decoder := NewRowDecoder()

	row, err := decoder.DecodeRow([]any{})
	require.NoError(t, err)
	assert.Empty(t, row)

	_, err = decoder.DecodeRow([]any{1})
	var dataErr *DataError
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, "expected 0 columns while row values count is 1, row data: [1]", dataErr.Error())
}

func TestRowDecoder_DecodeJSONRow(t *testing.T) {
	decoder, err := BuildRowDecoder([]Column{
		{Name: "id", Type: "bigint"},
		{Name: "payload", Type: "varbinary"},
		{Name: "scores", Type: "map(bigint, double)"},
		{Name: "person", Type: "row(name varchar, tags array(varchar))"},
	})
	require.NoError(t, err)

	row, err := decoder.DecodeJSONRow(json.RawMessage(`[9007199254740993, "ZWg/", {"1": 0.5, "-2": 1e3}, ["ofek", ["a", null]]]`))
	require.NoError(t, err)
	assert.Equal(t, DecodedRow{
		json.Number("9007199254740993"),
		[]byte("eh?"),
		map[any]any{int64(1): json.Number("0.5"), int64(-2): json.Number("1e3")},
		map[string]any{"name": "ofek", "tags": []any{"a", nil}},
	}, row)

	t.Run("not an array", func(t *testing.T) {
		_, err := decoder.DecodeJSONRow(json.RawMessage(`{"id": 1}`))
		assert.ErrorContains(t, err, "failed to unmarshal row")
	})

	t.Run("wrong width", func(t *testing.T) {
		_, err := decoder.DecodeJSONRow(json.RawMessage(`[1, null]`))
		var dataErr *DataError
		require.ErrorAs(t, err, &dataErr)
		assert.Equal(t, 4, dataErr.Expected)
		assert.Equal(t, 2, dataErr.Actual)
	})
}

func TestRowDecoder_Equal(t *testing.T) {
	a := NewRowDecoder(DefaultDecoder{}, ArrayDecoder{Element: VarbinaryDecoder{}})
	b := NewRowDecoder(DefaultDecoder{}, ArrayDecoder{Element: VarbinaryDecoder{}})
	c := NewRowDecoder(DefaultDecoder{}, ArrayDecoder{Element: DefaultDecoder{}})
	d := NewRowDecoder(DefaultDecoder{})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
	assert.False(t, a.Equal(nil))

	var none *RowDecoder
	assert.True(t, none.Equal(nil))
}

func TestRowDecoder_CellDecodersIsACopy(t *testing.T) {
	decoder := NewRowDecoder(DefaultDecoder{})
	decoders := decoder.CellDecoders()
	decoders[0] = VarbinaryDecoder{}
	assert.Equal(t, []CellDecoder{DefaultDecoder{}}, decoder.CellDecoders())
}
