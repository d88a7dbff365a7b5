package webhook

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggovsaas/waorders/internal/model"
)

func TestNormalizeMessage_KindTable(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantKind    string
		wantContent string
		wantMedia   string
		wantMeta    model.MessageMetadata
	}{
		{
			name:        "text with body",
			raw:         `{"from":"15551234567","id":"wamid.1","timestamp":"1756700000","type":"text","text":{"body":"hello"}}`,
			wantKind:    "text",
			wantContent: "hello",
		},
		{
			name:        "text without body payload",
			raw:         `{"from":"15551234567","id":"wamid.2","type":"text"}`,
			wantKind:    "text",
			wantContent: "",
		},
		{
			name:        "image with caption",
			raw:         `{"from":"15551234567","id":"wamid.3","type":"image","image":{"id":"media-1","mime_type":"image/jpeg","caption":"look at this"}}`,
			wantKind:    "image",
			wantContent: "look at this",
			wantMedia:   "media-1",
			wantMeta:    model.MessageMetadata{MimeType: "image/jpeg"},
		},
		{
			name:        "image without caption",
			raw:         `{"from":"15551234567","id":"wamid.4","type":"image","image":{"id":"media-2","mime_type":"image/png"}}`,
			wantKind:    "image",
			wantContent: "[Image]",
			wantMedia:   "media-2",
			wantMeta:    model.MessageMetadata{MimeType: "image/png"},
		},
		{
			name:        "audio",
			raw:         `{"from":"15551234567","id":"wamid.5","type":"audio","audio":{"id":"media-3","mime_type":"audio/ogg"}}`,
			wantKind:    "audio",
			wantContent: "[Audio]",
			wantMedia:   "media-3",
			wantMeta:    model.MessageMetadata{MimeType: "audio/ogg"},
		},
		{
			name:        "video with caption",
			raw:         `{"from":"15551234567","id":"wamid.6","type":"video","video":{"id":"media-4","mime_type":"video/mp4","caption":"unboxing"}}`,
			wantKind:    "video",
			wantContent: "unboxing",
			wantMedia:   "media-4",
			wantMeta:    model.MessageMetadata{MimeType: "video/mp4"},
		},
		{
			name:        "video without caption",
			raw:         `{"from":"15551234567","id":"wamid.7","type":"video","video":{"id":"media-5","mime_type":"video/mp4"}}`,
			wantKind:    "video",
			wantContent: "[Video]",
			wantMedia:   "media-5",
			wantMeta:    model.MessageMetadata{MimeType: "video/mp4"},
		},
		{
			name:        "document with filename",
			raw:         `{"from":"15551234567","id":"wamid.8","type":"document","document":{"id":"media-6","mime_type":"application/pdf","filename":"invoice.pdf"}}`,
			wantKind:    "document",
			wantContent: "invoice.pdf",
			wantMedia:   "media-6",
			wantMeta:    model.MessageMetadata{MimeType: "application/pdf", FileName: "invoice.pdf"},
		},
		{
			name:        "document without filename",
			raw:         `{"from":"15551234567","id":"wamid.9","type":"document","document":{"id":"media-7","mime_type":"application/pdf"}}`,
			wantKind:    "document",
			wantContent: "[Document]",
			wantMedia:   "media-7",
			wantMeta:    model.MessageMetadata{MimeType: "application/pdf"},
		},
		{
			name:        "unknown kind",
			raw:         `{"from":"15551234567","id":"wamid.11","type":"sticker"}`,
			wantKind:    "sticker",
			wantContent: "[Unsupported message type: sticker]",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var msg webhookMessage
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &msg))

			event, err := normalizeMessage("store-1", msg)
			require.NoError(t, err)

			assert.Equal(t, "store-1", event.StoreID)
			assert.Equal(t, model.ChannelWhatsApp, event.Channel)
			assert.Equal(t, "15551234567", event.ExternalCustomerID)
			assert.Equal(t, msg.ID, event.ExternalMessageID)
			assert.Equal(t, tc.wantKind, event.Kind)
			assert.Equal(t, tc.wantContent, event.Content)
			assert.Equal(t, tc.wantMedia, event.MediaRef)
			assert.Equal(t, tc.wantMeta, event.Metadata)
		})
	}
}

func TestNormalizeMessage_Location(t *testing.T) {
	raw := `{"from":"15551234567","id":"wamid.10","type":"location","location":{"latitude":-6.2,"longitude":106.8}}`
	var msg webhookMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	event, err := normalizeMessage("store-1", msg)
	require.NoError(t, err)

	assert.Equal(t, "[Location]", event.Content)
	assert.Empty(t, event.MediaRef)
	require.NotNil(t, event.Metadata.Latitude)
	require.NotNil(t, event.Metadata.Longitude)
	assert.InDelta(t, -6.2, *event.Metadata.Latitude, 0.0001)
	assert.InDelta(t, 106.8, *event.Metadata.Longitude, 0.0001)
}

func TestNormalizeMessage_Timestamp(t *testing.T) {
	raw := `{"from":"15551234567","id":"wamid.12","timestamp":"1756700000","type":"text","text":{"body":"hi"}}`
	var msg webhookMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	event, err := normalizeMessage("store-1", msg)
	require.NoError(t, err)
	assert.Equal(t, int64(1756700000), event.Timestamp)
}

func TestNormalizeMessage_MissingIdentity(t *testing.T) {
	tests := []string{
		`{"id":"wamid.13","type":"text","text":{"body":"no sender"}}`,
		`{"from":"15551234567","type":"text","text":{"body":"no id"}}`,
	}
	for _, raw := range tests {
		var msg webhookMessage
		require.NoError(t, json.Unmarshal([]byte(raw), &msg))

		_, err := normalizeMessage("store-1", msg)
		assert.Error(t, err)
	}
}

func TestNewFakeDeliveryJSON_RoundTrip(t *testing.T) {
	body := NewFakeDeliveryJSON("phone-1", 4)

	var payload webhookPayload
	require.NoError(t, json.Unmarshal(body, &payload))

	assert.Equal(t, expectedObject, payload.Object)
	require.Len(t, payload.Entry, 1)
	require.Len(t, payload.Entry[0].Changes, 1)
	change := payload.Entry[0].Changes[0]
	assert.Equal(t, fieldMessages, change.Field)
	require.NotNil(t, change.Value.Metadata)
	assert.Equal(t, "phone-1", change.Value.Metadata.PhoneNumberID)
	require.Len(t, change.Value.Messages, 4)

	for _, msg := range change.Value.Messages {
		_, err := normalizeMessage("store-1", msg)
		assert.NoError(t, err)
	}
}
