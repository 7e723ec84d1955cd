package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeTypeMismatchIsValidationError(t *testing.T) {
	type target struct {
		Count int `json:"count"`
	}

	// The export schema does not declare "count", so only the decoder sees the mismatch.
	_, err := decode[target](KindEpaperExport, []byte(`{"count":"seven"}`))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	require.Len(t, verr.Violations, 1)
	require.Equal(t, "count", verr.Violations[0].Field)
	require.Equal(t, "type", verr.Violations[0].Type)
	require.Contains(t, verr.Violations[0].Message, "int")
}

func TestRewriteNumbers(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: `{"a":2.0}`, want: `{"a":2}`},
		{in: `{"a":[1e2,-3.0]}`, want: `{"a":[100,-3]}`},
		{in: `{"a":2.5}`, want: `{"a":2.5}`},
		{in: `{"a":1e20}`, want: `{"a":1e20}`},
		{in: `{"a":"2.0","b":null}`, want: `{"a":"2.0","b":null}`},
	}
	for _, tt := range tests {
		got, err := wholeNumbers([]byte(tt.in))
		require.NoError(t, err)
		require.JSONEq(t, tt.want, string(got), tt.in)
	}
}
