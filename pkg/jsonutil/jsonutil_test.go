package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type typedStruct struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	Value float64 `json:"value"`
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	in := typedStruct{Name: "stream", Count: 3, Value: -1.5}
	data, err := Marshal(in)
	require.NoError(t, err)

	var out typedStruct
	require.NoError(t, Unmarshal(data, &out))
	require.Equal(t, in, out)
}

func TestUnmarshalNilOutput(t *testing.T) {
	err := Unmarshal([]byte(`{}`), nil)
	require.ErrorIs(t, err, ErrInvalidOutput)
}

func TestUnmarshalTooLarge(t *testing.T) {
	data := make([]byte, MaxJSONSize+1)
	var out typedStruct
	err := Unmarshal(data, &out)
	require.ErrorIs(t, err, ErrValueTooLarge)
}

func TestUnmarshalInvalid(t *testing.T) {
	var out typedStruct
	require.Error(t, Unmarshal([]byte(`{"name":`), &out))
}
