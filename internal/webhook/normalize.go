package webhook

import (
	"fmt"
	"strconv"

	"github.com/ggovsaas/waorders/internal/model"
)

// normalizeMessage flattens one provider message into the canonical inbound
// event. Kind-specific payload shapes collapse to content/media/metadata:
// captions and filenames become content where present, otherwise a fixed
// placeholder label stands in for the non-text body.
func normalizeMessage(storeID string, msg webhookMessage) (model.InboundMessageEvent, error) {
	if msg.From == "" || msg.ID == "" {
		return model.InboundMessageEvent{}, fmt.Errorf("message missing sender or provider id (from=%q, id=%q)", msg.From, msg.ID)
	}

	event := model.InboundMessageEvent{
		StoreID:            storeID,
		Channel:            model.ChannelWhatsApp,
		ExternalCustomerID: msg.From,
		ExternalMessageID:  msg.ID,
		Kind:               msg.Type,
	}
	if ts, err := strconv.ParseInt(msg.Timestamp, 10, 64); err == nil {
		event.Timestamp = ts
	}

	switch msg.Type {
	case model.MessageKindText:
		if msg.Text != nil {
			event.Content = msg.Text.Body
		}
	case model.MessageKindImage:
		event.Content = "[Image]"
		if msg.Image != nil {
			if msg.Image.Caption != "" {
				event.Content = msg.Image.Caption
			}
			event.MediaRef = msg.Image.ID
			event.Metadata.MimeType = msg.Image.MimeType
		}
	case model.MessageKindAudio:
		event.Content = "[Audio]"
		if msg.Audio != nil {
			event.MediaRef = msg.Audio.ID
			event.Metadata.MimeType = msg.Audio.MimeType
		}
	case model.MessageKindVideo:
		event.Content = "[Video]"
		if msg.Video != nil {
			if msg.Video.Caption != "" {
				event.Content = msg.Video.Caption
			}
			event.MediaRef = msg.Video.ID
			event.Metadata.MimeType = msg.Video.MimeType
		}
	case model.MessageKindDocument:
		event.Content = "[Document]"
		if msg.Document != nil {
			if msg.Document.Filename != "" {
				event.Content = msg.Document.Filename
			}
			event.MediaRef = msg.Document.ID
			event.Metadata.MimeType = msg.Document.MimeType
			event.Metadata.FileName = msg.Document.Filename
		}
	case model.MessageKindLocation:
		event.Content = "[Location]"
		if msg.Location != nil {
			lat, long := msg.Location.Latitude, msg.Location.Longitude
			event.Metadata.Latitude = &lat
			event.Metadata.Longitude = &long
		}
	default:
		event.Content = fmt.Sprintf("[Unsupported message type: %s]", msg.Type)
	}

	return event, nil
}
