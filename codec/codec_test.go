package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "go-json"} {
		c, ok := ByName(name)
		require.True(t, ok)
		assert.Equal(t, name, c.Name())
	}

	_, ok := ByName("msgpack")
	assert.False(t, ok)
}

func TestCodecsAgree(t *testing.T) {
	fields := map[string]any{"text": "hello", "rank": 3, "tags": []string{"a", "b"}}

	for _, c := range []Codec{JSON{}, GoJSON{}} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := c.Marshal(fields)
			require.NoError(t, err)

			var out map[string]any
			require.NoError(t, c.Unmarshal(data, &out))
			assert.Equal(t, "hello", out["text"])
			assert.Equal(t, float64(3), out["rank"])
			assert.Equal(t, []any{"a", "b"}, out["tags"])
		})
	}
}

func TestNames(t *testing.T) {
	names := Names()
	assert.Subset(t, names, []string{"go-json", "json"})
	assert.IsNonDecreasing(t, names)
}

type upperCodec struct{ JSON }

func (upperCodec) Name() string { return "test-upper" }

func TestRegister(t *testing.T) {
	if _, ok := ByName("test-upper"); !ok {
		Register(upperCodec{})
	}

	c, ok := ByName("test-upper")
	require.True(t, ok)
	assert.Equal(t, "test-upper", c.Name())
	assert.Contains(t, Names(), "test-upper")

	assert.Panics(t, func() { Register(upperCodec{}) })
}

func TestFields(t *testing.T) {
	data, err := EncodeFields(Default, nil)
	require.NoError(t, err)
	assert.Nil(t, data)

	fields, err := DecodeFields(Default, nil)
	require.NoError(t, err)
	assert.Nil(t, fields)

	data, err = EncodeFields(Default, map[string]any{"text": "hi"})
	require.NoError(t, err)
	fields, err = DecodeFields(Default, data)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"text": "hi"}, fields)

	_, err = DecodeFields(Default, []byte("{"))
	assert.Error(t, err)
}
