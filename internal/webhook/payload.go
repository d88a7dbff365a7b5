package webhook

// Provider envelope for WhatsApp Business webhook deliveries. Every nested
// field can be absent in practice, so everything below a change value is a
// pointer or a slice; normalization treats missing fields as empty rather
// than failing the delivery.

const (
	// expectedObject is the top-level object of a WhatsApp Business delivery.
	expectedObject = "whatsapp_business_account"
	// fieldMessages marks the change entries this gateway consumes.
	fieldMessages = "messages"
)

type webhookPayload struct {
	Object string         `json:"object"`
	Entry  []webhookEntry `json:"entry"`
}

type webhookEntry struct {
	ID      string          `json:"id"`
	Changes []webhookChange `json:"changes"`
}

type webhookChange struct {
	Field string       `json:"field"`
	Value webhookValue `json:"value"`
}

type webhookValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         *webhookMetadata `json:"metadata,omitempty"`
	Contacts         []webhookContact `json:"contacts,omitempty"`
	Messages         []webhookMessage `json:"messages,omitempty"`
	Statuses         []webhookStatus  `json:"statuses,omitempty"`
}

type webhookMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type webhookContact struct {
	WaID    string `json:"wa_id"`
	Profile *struct {
		Name string `json:"name"`
	} `json:"profile,omitempty"`
}

type webhookMessage struct {
	From      string           `json:"from"`
	ID        string           `json:"id"`
	Timestamp string           `json:"timestamp"`
	Type      string           `json:"type"`
	Text      *textPayload     `json:"text,omitempty"`
	Image     *mediaPayload    `json:"image,omitempty"`
	Audio     *mediaPayload    `json:"audio,omitempty"`
	Video     *mediaPayload    `json:"video,omitempty"`
	Document  *documentPayload `json:"document,omitempty"`
	Location  *locationPayload `json:"location,omitempty"`
}

type textPayload struct {
	Body string `json:"body"`
}

type mediaPayload struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

type documentPayload struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256,omitempty"`
	Filename string `json:"filename,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

type locationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

type webhookStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}
