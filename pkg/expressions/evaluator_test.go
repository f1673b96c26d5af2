package expressions

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var data any
	require.NoError(t, json.Unmarshal([]byte(raw), &data))
	return data
}

func TestEvaluator_Scalars(t *testing.T) {
	e := NewEvaluator()
	data := decode(t, `{"id": 123456789, "text": "hello", "rating": 4, "score": "-0.5", "answered": true, "at": "2024-05-01T10:00:00+03:00"}`)

	id, err := e.EvaluateString("id", data)
	require.NoError(t, err)
	assert.Equal(t, "123456789", id)

	text, err := e.EvaluateOptionalString("text", data)
	require.NoError(t, err)
	require.NotNil(t, text)
	assert.Equal(t, "hello", *text)

	missing, err := e.EvaluateOptionalString("nope", data)
	require.NoError(t, err)
	assert.Nil(t, missing)

	rating, err := e.EvaluateOptionalInt("rating", data)
	require.NoError(t, err)
	require.NotNil(t, rating)
	assert.Equal(t, 4, *rating)

	score, err := e.EvaluateOptionalFloat("score", data)
	require.NoError(t, err)
	require.NotNil(t, score)
	assert.InDelta(t, -0.5, *score, 1e-9)

	answered, err := e.EvaluateBool("answered", data)
	require.NoError(t, err)
	assert.True(t, answered)

	at, err := e.EvaluateTime("at", data)
	require.NoError(t, err)
	assert.True(t, at.Equal(time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)))
}

func TestEvaluator_Slice(t *testing.T) {
	e := NewEvaluator()
	data := decode(t, `{"data": {"items": [{"id": 1}, {"id": 2}]}}`)

	items, err := e.EvaluateSlice("data.items", data)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = e.EvaluateSlice("data", data)
	assert.Error(t, err)
}

func TestEvaluator_InvalidExpression(t *testing.T) {
	e := NewEvaluator()
	assert.Error(t, e.Compile("items[?"))
	assert.NoError(t, e.Compile("items[0].id"))
}
