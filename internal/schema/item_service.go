package schema

import (
	"bytes"
	"encoding/json"
)

// Item Service API tags.
const (
	APIName    = "TITSPublicApi"
	APIVersion = "1.0"

	ItemListRequest        = "TITSItemListRequest"
	TriggerListRequest     = "TITSTriggerListRequest"
	ThrowItemsRequest      = "TITSThrowItemsRequest"
	TriggerActivateRequest = "TITSTriggerActivateRequest"

	ItemListResponse    = "TITSItemListResponse"
	TriggerListResponse = "TITSTriggerListResponse"
)

// ItemServiceRequest is the envelope of every request to the Item Service.
type ItemServiceRequest struct {
	APIName     string `json:"apiName"`
	APIVersion  string `json:"apiVersion"`
	RequestID   string `json:"requestID,omitempty"`
	MessageType string `json:"messageType"`
	Data        any    `json:"data,omitempty"`
}

// ThrowItemsData is the payload of a throw request.
type ThrowItemsData struct {
	Items            []string `json:"items"`
	DelayTime        float64  `json:"delayTime"`
	AmountOfThrows   int      `json:"amountOfThrows"`
	ErrorOnMissingID bool     `json:"errorOnMissingID"`
}

// TriggerActivateData is the payload of a trigger activation.
type TriggerActivateData struct {
	TriggerID        string `json:"triggerID"`
	ErrorOnMissingID bool   `json:"errorOnMissingID"`
}

func newRequest(messageType, requestID string, data any) ItemServiceRequest {
	return ItemServiceRequest{
		APIName:     APIName,
		APIVersion:  APIVersion,
		RequestID:   requestID,
		MessageType: messageType,
		Data:        data,
	}
}

// NewItemListRequest asks for the current item collection.
func NewItemListRequest() ItemServiceRequest { return newRequest(ItemListRequest, "", nil) }

// NewTriggerListRequest asks for the current trigger collection.
func NewTriggerListRequest() ItemServiceRequest { return newRequest(TriggerListRequest, "", nil) }

// NewThrowItemsRequest throws each of ids amount times, delay seconds apart.
func NewThrowItemsRequest(requestID string, ids []string, delay float64, amount int, errorOnMissingID bool) ItemServiceRequest {
	return newRequest(ThrowItemsRequest, requestID, ThrowItemsData{
		Items:            ids,
		DelayTime:        delay,
		AmountOfThrows:   amount,
		ErrorOnMissingID: errorOnMissingID,
	})
}

// NewTriggerActivateRequest fires the trigger with the given id.
func NewTriggerActivateRequest(requestID, triggerID string, errorOnMissingID bool) ItemServiceRequest {
	return newRequest(TriggerActivateRequest, requestID, TriggerActivateData{
		TriggerID:        triggerID,
		ErrorOnMissingID: errorOnMissingID,
	})
}

// ItemServiceResponse covers the two list responses. Items and Triggers stay
// raw so the catalog can decode loosely shaped records itself.
type ItemServiceResponse struct {
	MessageType string `json:"messageType"`
	RequestID   string `json:"requestID,omitempty"`
	Data        struct {
		Items    json.RawMessage `json:"items,omitempty"`
		Triggers json.RawMessage `json:"triggers,omitempty"`
	} `json:"data"`
}

// Present reports whether a raw field was sent with a non-null value.
func Present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// UnwrapFrame undoes the double encoding some Item Service builds apply, where
// the JSON object arrives as a JSON string literal. Other frames are returned
// trimmed but otherwise untouched.
func UnwrapFrame(raw []byte) []byte {
	text := bytes.TrimSpace(raw)
	if len(text) < 2 || text[0] != '"' || text[len(text)-1] != '"' {
		return text
	}
	var inner string
	if err := json.Unmarshal(text, &inner); err == nil {
		return []byte(inner)
	}
	return bytes.ReplaceAll(text[1:len(text)-1], []byte(`\"`), []byte(`"`))
}
