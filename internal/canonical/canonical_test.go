package canonical

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSortsKeysRecursively(t *testing.T) {
	a, err := Marshal(map[string]interface{}{
		"resourceId": "gpt",
		"rating":     4.5,
		"performance": map[string]interface{}{
			"z": 1, "a": []interface{}{"x", map[string]interface{}{"d": 1, "c": 2}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"performance":{"a":["x",{"c":2,"d":1}],"z":1},"rating":4.5,"resourceId":"gpt"}`, string(a))
}

func TestMarshalStructUsesJSONTags(t *testing.T) {
	type envelope struct {
		Type    string `json:"type"`
		Payload string `json:"payload"`
		Skip    string `json:"-"`
		Empty   string `json:"empty,omitempty"`
	}
	b, err := Marshal(envelope{Type: "feedback", Payload: "<ok> & fine", Skip: "no"})
	require.NoError(t, err)
	assert.Equal(t, `{"payload":"<ok> & fine","type":"feedback"}`, string(b))
}

func TestMarshalKeepsNumberText(t *testing.T) {
	b, err := Marshal(map[string]interface{}{"n": json.Number("1.50"), "big": int64(1) << 60})
	require.NoError(t, err)
	assert.Equal(t, `{"big":1152921504606846976,"n":1.50}`, string(b))
}

func TestMarshalIsDeterministic(t *testing.T) {
	in := map[string]interface{}{"b": true, "a": nil, "c": "s"}
	first, err := Marshal(in)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Marshal(in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, `{"a":null,"b":true,"c":"s"}`, string(first))
}

func TestMarshalRejectsUnsupported(t *testing.T) {
	_, err := Marshal(map[string]interface{}{"ch": make(chan int)})
	assert.Error(t, err)
}
