package webhook

import (
	"fmt"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/ggovsaas/waorders/internal/model"
	"github.com/ggovsaas/waorders/pkg/utils"
)

// NewFakeDeliveryJSON builds one realistic provider delivery as raw JSON:
// a whatsapp_business_account envelope carrying messageCount inbound messages
// addressed to phoneNumberID. Used by the load generator and end-to-end tests.
func NewFakeDeliveryJSON(phoneNumberID string, messageCount int) []byte {
	if messageCount <= 0 {
		messageCount = 1
	}

	messages := make([]webhookMessage, 0, messageCount)
	for i := 0; i < messageCount; i++ {
		messages = append(messages, newFakeMessage())
	}

	payload := webhookPayload{
		Object: expectedObject,
		Entry: []webhookEntry{
			{
				ID: gofakeit.UUID(),
				Changes: []webhookChange{
					{
						Field: fieldMessages,
						Value: webhookValue{
							MessagingProduct: "whatsapp",
							Metadata: &webhookMetadata{
								DisplayPhoneNumber: gofakeit.Phone(),
								PhoneNumberID:      phoneNumberID,
							},
							Messages: messages,
						},
					},
				},
			},
		},
	}
	return utils.MustMarshalJSON(payload)
}

func newFakeMessage() webhookMessage {
	msg := webhookMessage{
		From:      fmt.Sprintf("1%s", gofakeit.Numerify("##########")),
		ID:        fmt.Sprintf("wamid.%s", gofakeit.LetterN(28)),
		Timestamp: strconv.FormatInt(time.Now().Unix(), 10),
	}

	// Weighted toward text, like real traffic.
	switch gofakeit.Number(0, 9) {
	case 0:
		msg.Type = model.MessageKindImage
		msg.Image = &mediaPayload{
			ID:       gofakeit.UUID(),
			MimeType: "image/jpeg",
			Caption:  gofakeit.Sentence(4),
		}
	case 1:
		msg.Type = model.MessageKindDocument
		msg.Document = &documentPayload{
			ID:       gofakeit.UUID(),
			MimeType: "application/pdf",
			Filename: fmt.Sprintf("%s.pdf", gofakeit.Word()),
		}
	case 2:
		msg.Type = model.MessageKindAudio
		msg.Audio = &mediaPayload{
			ID:       gofakeit.UUID(),
			MimeType: "audio/ogg",
		}
	case 3:
		msg.Type = model.MessageKindLocation
		msg.Location = &locationPayload{
			Latitude:  gofakeit.Latitude(),
			Longitude: gofakeit.Longitude(),
			Name:      gofakeit.Company(),
		}
	default:
		msg.Type = model.MessageKindText
		msg.Text = &textPayload{Body: gofakeit.Sentence(gofakeit.Number(3, 15))}
	}
	return msg
}
