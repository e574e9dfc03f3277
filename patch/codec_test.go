package patch

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kobst/project-apollo-sub005/graph"
)

const samplePatch = `{
  "id": "patch_1",
  "baseVersionId": "v1",
  "createdAt": 1700000000000,
  "metadata": {"source": "ai", "action": "generate_scene"},
  "ops": [
    {"op": "ADD_NODE", "node": {"id": "s2", "type": "Scene", "heading": "EXT. DOCK - DAWN", "order_index": 2}},
    {"op": "UPDATE_NODE", "id": "s1", "set": {"status": "revised"}, "unset": ["scene_overview"]},
    {"op": "ADD_EDGE", "edge": {"type": "FEATURES_CHARACTER", "from": "s2", "to": "c1"}},
    {"op": "DELETE_EDGE", "edge": {"type": "LOCATED_AT", "from": "s1", "to": "l1"}},
    {"op": "BATCH_EDGE", "deletes": [{"id": "e1"}], "adds": [{"type": "LOCATED_AT", "from": "s2", "to": "l1"}]}
  ]
}`

func TestDecode_AllShapes(t *testing.T) {
	p, err := Decode([]byte(samplePatch))
	require.NoError(t, err)

	assert.Equal(t, "patch_1", p.ID)
	assert.Equal(t, "v1", p.BaseVersionID)
	assert.Equal(t, "ai", p.Metadata.Source)
	require.Len(t, p.Ops, 5)

	add, ok := p.Ops[0].(AddNode)
	require.True(t, ok)
	assert.Equal(t, graph.TypeScene, add.Node.Type)
	assert.Equal(t, "EXT. DOCK - DAWN", add.Node.String("heading"))

	del, ok := p.Ops[3].(DeleteEdge)
	require.True(t, ok)
	require.NotNil(t, del.Key)
	assert.Equal(t, graph.EdgeLocatedAt, del.Key.Type)

	batch, ok := p.Ops[4].(BatchEdge)
	require.True(t, ok)
	assert.Len(t, batch.Deletes, 1)
	assert.Len(t, batch.Adds, 1)
}

func TestEncode_KeepsTags(t *testing.T) {
	p, err := Decode([]byte(samplePatch))
	require.NoError(t, err)

	data, err := json.Marshal(p)
	require.NoError(t, err)

	back, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, back.Ops, len(p.Ops))
	for i := range p.Ops {
		assert.Equal(t, p.Ops[i].Kind(), back.Ops[i].Kind())
	}
}

func TestDecode_UnknownTag(t *testing.T) {
	_, err := Decode([]byte(`{"id":"p","ops":[{"op":"ADD_NODE","node":{"id":"c1","type":"Character"}},{"op":"RENAME_NODE","id":"c1"}]}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedOp))

	var m *MalformedOpError
	require.True(t, errors.As(err, &m))
	assert.Equal(t, 1, m.Index)
	assert.Equal(t, "RENAME_NODE", m.Tag)
}

func TestDecode_MissingRequiredFields(t *testing.T) {
	cases := map[string]string{
		"node without type":  `{"ops":[{"op":"ADD_NODE","node":{"id":"c1"}}]}`,
		"update without set": `{"ops":[{"op":"UPDATE_NODE","id":"c1"}]}`,
		"edge without to":    `{"ops":[{"op":"ADD_EDGE","edge":{"type":"OWNS","from":"c1"}}]}`,
		"delete without key": `{"ops":[{"op":"DELETE_EDGE"}]}`,
		"empty batch":        `{"ops":[{"op":"BATCH_EDGE"}]}`,
		"missing tag":        `{"ops":[{"id":"c1"}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(body))
			assert.True(t, errors.Is(err, ErrMalformedOp), "got %v", err)
		})
	}
}
