package frame

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/ajitpratap0/econdash/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSVInfersKinds(t *testing.T) {
	doc := `data,valor,ano,indicador
2024-01-01,4.51,2024,ipca
2024-02-01,,2024,ipca
2024-03-01,3.93,2024,selic
`
	f, err := ReadCSV(strings.NewReader(doc), CSVOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, f.Len())
	assert.Equal(t, map[string]Kind{
		"data":      KindTime,
		"valor":     KindFloat64,
		"ano":       KindInt64,
		"indicador": KindString,
	}, f.Kinds())

	valor, _ := f.Column("valor")
	assert.True(t, math.IsNaN(valor.Value(1).(float64)))

	data, _ := f.Column("data")
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), data.Value(1))
}

func TestReadCSVDayFirstDates(t *testing.T) {
	doc := "data;valor\n31/01/2024;1\n29/02/2024;2\n"
	f, err := ReadCSV(strings.NewReader(doc), CSVOptions{Comma: ';'})
	require.NoError(t, err)
	data, _ := f.Column("data")
	assert.Equal(t, KindTime, data.Kind())
	assert.Equal(t, time.Month(2), data.Value(1).(time.Time).Month())
}

func TestReadCSVForcedKinds(t *testing.T) {
	doc := "codigo,data\n433,2024-01-01\n189,2024-02-01\n"
	f, err := ReadCSV(strings.NewReader(doc), CSVOptions{StringColumns: []string{"codigo"}})
	require.NoError(t, err)
	assert.Equal(t, KindString, f.Kinds()["codigo"])

	_, err = ReadCSV(strings.NewReader(doc), CSVOptions{TimeColumns: []string{"codigo"}})
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), CSVOptions{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))

	_, err = ReadCSV(strings.NewReader("a,b\n1,2,3\n"), CSVOptions{})
	assert.Error(t, err)
}

func TestReadCSVHeaderOnly(t *testing.T) {
	f, err := ReadCSV(strings.NewReader("a,b\n"), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, f.Len())
	assert.Equal(t, []string{"a", "b"}, f.Names())
}
