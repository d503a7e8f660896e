package mmp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeRowsKeepsFieldOrder(t *testing.T) {
	rows, err := DecodeRows([]byte(`[
		{"web_id": "2014.MMP01037", "region": "North America", "reported_date": "2014-12-31", "number_dead": "1", "number_missing": ""},
		{"region": "Mediterranean", "web_id": "2014.MMP00001"}
	]`))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, []string{"web_id", "region", "reported_date", "number_dead", "number_missing"}, rows[0].Keys())
	require.Equal(t, []string{"region", "web_id"}, rows[1].Keys())

	missing, ok := rows[0].Get("number_missing")
	require.True(t, ok)
	require.Equal(t, "", missing)

	_, ok = rows[1].Get("reported_date")
	require.False(t, ok)
}

func TestDecodeRowsValueKinds(t *testing.T) {
	rows, err := DecodeRows([]byte(`[{"s": "text", "n": 12.50, "b": true, "z": null, "o": {"a": [1, 2]}, "esc": "line\nbreak"}]`))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	testCases := []struct {
		field  string
		expect string
	}{
		{field: "s", expect: "text"},
		{field: "n", expect: "12.50"},
		{field: "b", expect: "true"},
		{field: "z", expect: ""},
		{field: "o", expect: `{"a":[1,2]}`},
		{field: "esc", expect: "line\nbreak"},
	}
	for _, test := range testCases {
		value, ok := rows[0].Get(test.field)
		require.True(t, ok, test.field)
		require.Equal(t, test.expect, value, test.field)
	}
}

func TestDecodeRowsAbsent(t *testing.T) {
	for _, payload := range []string{"", "  ", "null", "[]"} {
		rows, err := DecodeRows([]byte(payload))
		require.NoError(t, err, payload)
		require.Empty(t, rows, payload)
	}
}

func TestDecodeRowsDropsFieldlessElements(t *testing.T) {
	rows, err := DecodeRows([]byte(`[null, {"web_id": "a"}, {}, {"web_id": "b"}, null]`))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for i, id := range []string{"a", "b"} {
		value, _ := rows[i].Get("web_id")
		require.Equal(t, id, value)
	}

	rows, err = DecodeRows([]byte(`[null, {}]`))
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestDecodeRowsInvalid(t *testing.T) {
	for _, payload := range []string{`{"web_id": "x"}`, `[1, 2]`, `[{"a": }]`, `"text"`} {
		_, err := DecodeRows([]byte(payload))
		require.Error(t, err, payload)
	}
}

func TestRowDuplicateField(t *testing.T) {
	rows, err := DecodeRows([]byte(`[{"a": "1", "b": "2", "a": "3"}]`))
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, rows[0].Keys())
	value, _ := rows[0].Get("a")
	require.Equal(t, "3", value)
}

func TestRowMarshalRoundTrip(t *testing.T) {
	row := NewRow("web_id", "2014.MMP01037", "region", "North America", "reported_date", "2014-12-31")
	data, err := json.Marshal(row)
	require.NoError(t, err)
	require.Equal(t, `{"web_id":"2014.MMP01037","region":"North America","reported_date":"2014-12-31"}`, string(data))

	var decoded Row
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	require.Equal(t, row.Keys(), decoded.Keys())
	require.Equal(t, 3, decoded.Len())
}

func TestRowKeysIsACopy(t *testing.T) {
	row := NewRow("a", "1", "b", "2")
	keys := row.Keys()
	keys[0] = "changed"
	require.Equal(t, []string{"a", "b"}, row.Keys())
}
