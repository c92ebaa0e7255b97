package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessage(t *testing.T) {
	t.Run("collected", func(t *testing.T) {
		msg, err := DecodeMessage([]byte(`{
			"type":"collected",
			"files":[{"filepath":"/src/a.test.ts","tasks":[
				{"type":"suite","name":"math","tasks":[
					{"type":"test","name":"adds"}
				]}
			]}]
		}`))
		require.NoError(t, err)
		require.Len(t, msg.Files, 1)
		assert.Equal(t, "math", msg.Files[0].Tasks[0].Name)
		assert.Nil(t, msg.Files[0].Tasks[0].Tasks[0].Result)
	})

	t.Run("taskUpdate with result", func(t *testing.T) {
		msg, err := DecodeMessage([]byte(`{
			"type":"taskUpdate",
			"files":[{"filepath":"/src/a.test.ts","tasks":[
				{"type":"test","name":"adds","result":{"state":"fail","error":{"message":"expected 2"}}}
			]}]
		}`))
		require.NoError(t, err)
		res := msg.Files[0].Tasks[0].Result
		require.NotNil(t, res)
		assert.Equal(t, StateFail, res.State)
		assert.Equal(t, "expected 2", res.Error.Message)
	})

	t.Run("finished", func(t *testing.T) {
		msg, err := DecodeMessage([]byte(`{"type":"finished"}`))
		require.NoError(t, err)
		assert.Equal(t, MsgFinished, msg.Type)
	})

	t.Run("missing type", func(t *testing.T) {
		_, err := DecodeMessage([]byte(`{"files":[]}`))
		require.ErrorContains(t, err, "no type")
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := DecodeMessage([]byte(`{"type":"telemetry"}`))
		require.ErrorContains(t, err, "unknown frame type")
	})

	t.Run("missing filepath", func(t *testing.T) {
		_, err := DecodeMessage([]byte(`{"type":"collected","files":[{"tasks":[]}]}`))
		require.ErrorContains(t, err, "missing filepath")
	})

	t.Run("unknown task type", func(t *testing.T) {
		_, err := DecodeMessage([]byte(`{
			"type":"collected",
			"files":[{"filepath":"/a","tasks":[{"type":"bench","name":"x"}]}]
		}`))
		require.ErrorContains(t, err, "unknown task type")
	})

	t.Run("test task with children", func(t *testing.T) {
		_, err := DecodeMessage([]byte(`{
			"type":"collected",
			"files":[{"filepath":"/a","tasks":[
				{"type":"test","name":"x","tasks":[{"type":"test","name":"y"}]}
			]}]
		}`))
		require.ErrorContains(t, err, "has children")
	})

	t.Run("not json", func(t *testing.T) {
		_, err := DecodeMessage([]byte(`nope`))
		require.Error(t, err)
	})
}
