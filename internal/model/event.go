package model

// InboundMessageEvent is the canonical, normalized form of one provider
// message, produced by the webhook gateway and consumed by the ingestion
// service. The provider's per-kind payload shapes are already flattened into
// content/media/metadata by the time this type is built.
type InboundMessageEvent struct {
	StoreID            string          `json:"store_id,omitempty" validate:"required"`
	Channel            string          `json:"channel,omitempty" validate:"required,oneof=whatsapp instagram google pos web"`
	ExternalCustomerID string          `json:"external_customer_id,omitempty" validate:"required"`
	ExternalMessageID  string          `json:"external_message_id,omitempty" validate:"required"`
	Kind               string          `json:"kind,omitempty" validate:"required"`
	Content            string          `json:"content"`
	MediaRef           string          `json:"media_ref,omitempty" validate:"omitempty"`
	Metadata           MessageMetadata `json:"metadata,omitempty" validate:"omitempty"`
	Timestamp          int64           `json:"timestamp,omitempty" validate:"omitempty,gte=0"`
}

// OutboundMessage is an agent-authored message submitted through the API.
type OutboundMessage struct {
	ConversationID int64  `json:"conversation_id,omitempty" validate:"required"`
	AgentID        string `json:"agent_id,omitempty" validate:"required"`
	Content        string `json:"content,omitempty" validate:"required"`
	Kind           string `json:"kind,omitempty" validate:"omitempty,oneof=text image audio video document location"`
}

// StatusCallback is a delivery/read/failure receipt from the provider.
// Observed and logged only; not persisted.
type StatusCallback struct {
	ExternalMessageID string `json:"external_message_id,omitempty"`
	Status            string `json:"status,omitempty"`
	RecipientID       string `json:"recipient_id,omitempty"`
	Timestamp         int64  `json:"timestamp,omitempty"`
}

// IngestOutcome classifies the result of ingesting one inbound message.
type IngestOutcome string

const (
	// OutcomeIngested means a new message row was created.
	OutcomeIngested IngestOutcome = "ingested"
	// OutcomeDuplicate means the external message id was already persisted;
	// nothing was written.
	OutcomeDuplicate IngestOutcome = "duplicate"
	// OutcomeFailed means persistence failed; the error travels alongside.
	OutcomeFailed IngestOutcome = "failed"
)

// IngestResult is returned per inbound message so the gateway can aggregate
// a per-batch outcome summary without changing the HTTP contract.
type IngestResult struct {
	ConversationID int64         `json:"conversation_id"`
	MessageID      int64         `json:"message_id,omitempty"`
	Outcome        IngestOutcome `json:"outcome"`
}

// IsNew reports whether the ingest created a new message row.
func (r IngestResult) IsNew() bool {
	return r.Outcome == OutcomeIngested
}

// BatchSummary aggregates per-message outcomes for one webhook delivery.
type BatchSummary struct {
	Ingested   int `json:"ingested"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// Observe folds one result (or failure) into the summary.
func (s *BatchSummary) Observe(outcome IngestOutcome) {
	switch outcome {
	case OutcomeIngested:
		s.Ingested++
	case OutcomeDuplicate:
		s.Duplicates++
	default:
		s.Failed++
	}
}
