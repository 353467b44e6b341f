package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSnapshot_KeepsAngleBrackets(t *testing.T) {
	r := NewResult()
	r.Committed = [][]string{{"insert { << <http://ex/s> <http://ex/p> \"x\" >> }"}}

	data, err := MarshalSnapshot("brackets", r)
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, `<< <http://ex/s> <http://ex/p> \"x\" >>`)
	assert.NotContains(t, s, `\u003c`)
	assert.True(t, strings.HasSuffix(s, "}\n"))
}

func TestMarshalSnapshot_EmptyResult(t *testing.T) {
	data, err := MarshalSnapshot("empty", NewResult())
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"scenario_name\": \"empty\",\n  \"trace\": [],\n  \"committed\": []\n}\n", string(data))
}
