package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrowItemsRequest_Wire(t *testing.T) {
	req := NewThrowItemsRequest("1700000000000", []string{"abc1"}, 0.1, 3, true)
	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"apiName":"TITSPublicApi","apiVersion":"1.0","requestID":"1700000000000",
		"messageType":"TITSThrowItemsRequest",
		"data":{"items":["abc1"],"delayTime":0.1,"amountOfThrows":3,"errorOnMissingID":true}
	}`, string(data))
}

func TestListRequest_OmitsPayload(t *testing.T) {
	data, err := json.Marshal(NewItemListRequest())
	require.NoError(t, err)
	assert.JSONEq(t, `{"apiName":"TITSPublicApi","apiVersion":"1.0","messageType":"TITSItemListRequest"}`, string(data))
}

func TestCreateState_Wire(t *testing.T) {
	data, err := json.Marshal(NewCreateState("Egg", "Egg", "abc2", "Throwables"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"createState","id":"Egg","desc":"Egg","defaultValue":"abc2","forceUpdate":false,"parentGroup":"Throwables"}`, string(data))
}

func TestChoiceUpdate_NilBecomesEmptyList(t *testing.T) {
	data, err := json.Marshal(NewChoiceUpdate("item", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"choiceUpdate","id":"item","value":[]}`, string(data))
}

func TestHostInbound_Action(t *testing.T) {
	var msg HostInbound
	raw := `{"type":"action","pluginId":"tits.connector","actionId":"tits.throwItem","data":[{"id":"item","value":"Egg"},{"id":"amountOfThrows","value":"2"}]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Equal(t, HostAction, msg.Type)
	assert.Equal(t, "Egg", msg.Data.Value("item"))
	assert.Equal(t, "2", msg.Data.Value("amountOfThrows"))
	assert.Equal(t, "", msg.Data.Value("delayTime"))
}

func TestHostInbound_NonArrayData(t *testing.T) {
	var msg HostInbound
	raw := `{"type":"broadcast","data":{"event":"pageChange"}}`
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Equal(t, "broadcast", msg.Type)
	assert.Empty(t, msg.Data)
}

func TestHostInbound_NonStringArgValues(t *testing.T) {
	var msg HostInbound
	raw := `{"type":"action","actionId":"tits.throwItem","data":[
		{"id":"item","value":"Confetti"},
		{"id":"amountOfThrows","value":3},
		{"id":"delayTime","value":0.25},
		{"id":"errorOnMissingID","value":true},
		{"id":"extra","value":null},
		{"id":"nested","value":{"a":1}}
	]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Equal(t, "Confetti", msg.Data.Value("item"))
	assert.Equal(t, "3", msg.Data.Value("amountOfThrows"))
	assert.Equal(t, "0.25", msg.Data.Value("delayTime"))
	assert.Equal(t, "true", msg.Data.Value("errorOnMissingID"))
	assert.Equal(t, "", msg.Data.Value("extra"))
	assert.Equal(t, "", msg.Data.Value("nested"))
}

func TestHostInbound_Settings(t *testing.T) {
	var msg HostInbound
	raw := `{"type":"info","settings":[{"Debug Logging":true},{"TITS Port":"42070"}]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	require.Len(t, msg.Settings, 2)
	assert.Equal(t, true, msg.Settings[0]["Debug Logging"])
	assert.Equal(t, "42070", msg.Settings[1]["TITS Port"])
}

func TestUnwrapFrame(t *testing.T) {
	plain := []byte(` {"messageType":"x"} `)
	assert.Equal(t, `{"messageType":"x"}`, string(UnwrapFrame(plain)))

	quoted, err := json.Marshal(`{"messageType":"x","data":{"items":[]}}`)
	require.NoError(t, err)
	assert.Equal(t, `{"messageType":"x","data":{"items":[]}}`, string(UnwrapFrame(quoted)))

	// Not a valid string literal; falls back to stripping quotes and escapes.
	broken := []byte(`"{\"a\":1}\q"`)
	assert.Equal(t, `{"a":1}\q`, string(UnwrapFrame(broken)))
}

func TestPresent(t *testing.T) {
	assert.False(t, Present(nil))
	assert.False(t, Present(json.RawMessage(" null")))
	assert.True(t, Present(json.RawMessage("[]")))
}
