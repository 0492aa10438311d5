package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("05/03/2024")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05", d.String())

	_, err = ParseDate("2024-03-05")
	assert.Error(t, err)

	_, err = ParseDate("31/02/2024")
	assert.Error(t, err)
}

func TestDateJSON(t *testing.T) {
	d := NewDate(time.Date(2023, time.December, 31, 22, 15, 0, 0, time.UTC))

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2023-12-31"`, string(data))

	var decoded Date
	require.NoError(t, json.Unmarshal([]byte(`"2024-01-15"`), &decoded))
	assert.Equal(t, "2024-01-15", decoded.String())

	assert.Error(t, json.Unmarshal([]byte(`"15/01/2024"`), &decoded))
	assert.Error(t, json.Unmarshal([]byte(`20240115`), &decoded))
}

func TestDateScan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan(time.Date(2024, time.June, 1, 13, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-06-01", d.String())

	require.NoError(t, d.Scan([]byte("2024-07-02")))
	assert.Equal(t, "2024-07-02", d.String())

	require.NoError(t, d.Scan("2024-08-03"))
	assert.Equal(t, "2024-08-03", d.String())

	assert.Error(t, d.Scan(42))

	v, err := d.Value()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.August, 3, 0, 0, 0, 0, time.UTC), v)
}
