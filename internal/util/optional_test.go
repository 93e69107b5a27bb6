package util

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptional_SomeAndNone(t *testing.T) {
	some := Some(42)
	v, ok := some.Get()
	assert.True(t, ok)
	assert.Equal(t, 42, v)
	assert.Equal(t, 42, some.Unwrap())
	assert.Equal(t, 42, some.UnwrapOr(7))

	none := None[int]()
	_, ok = none.Get()
	assert.False(t, ok)
	assert.Equal(t, 7, none.UnwrapOr(7))
	assert.Panics(t, func() { none.Unwrap() })
}

func TestOptional_JSONRoundTrip(t *testing.T) {
	type doc struct {
		ExpiresAt Optional[time.Time] `json:"expiresAt"`
		Note      Optional[string]    `json:"note"`
	}

	expires := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	in := doc{ExpiresAt: Some(expires), Note: None[string]()}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"note":null`)

	var out doc
	require.NoError(t, json.Unmarshal(data, &out))

	got, ok := out.ExpiresAt.Get()
	require.True(t, ok)
	assert.True(t, got.Equal(expires))
	_, ok = out.Note.Get()
	assert.False(t, ok)
}

func TestRandomString(t *testing.T) {
	a, err := RandomString(32)
	require.NoError(t, err)
	b, err := RandomString(32)
	require.NoError(t, err)

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
