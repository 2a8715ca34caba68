package value

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestRoundTripAllKinds(t *testing.T) {
	cases := []Value{
		Null(),
		Int64(-42),
		Float64(3.5),
		Text("hello"),
		Bool(true),
		Bytes([]byte{0x00, 0xFF, 0x10}),
	}

	for _, v := range cases {
		buf, err := msgpack.Marshal(v)
		require.NoError(t, err)

		var decoded Value
		require.NoError(t, msgpack.Unmarshal(buf, &decoded))
		require.True(t, Equal(v, decoded))
	}
}

func TestBinaryFidelity(t *testing.T) {
	raw := make([]byte, 64*1024)
	for i := range raw {
		raw[i] = byte(i % 256)
	}
	v := Bytes(raw)

	buf, err := msgpack.Marshal(v)
	require.NoError(t, err)

	var decoded Value
	require.NoError(t, msgpack.Unmarshal(buf, &decoded))
	require.Equal(t, raw, decoded.Any())
}

func TestFromAnyUnsupportedType(t *testing.T) {
	_, err := FromAny(struct{}{})
	require.Error(t, err)
}

func TestEqualDifferentKinds(t *testing.T) {
	require.False(t, Equal(Int64(0), Bool(false)))
	require.False(t, Equal(Null(), Int64(0)))
}
