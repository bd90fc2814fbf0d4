package services

import (
	"context"
	"strings"

	"sms-relay-server/internal/provider"
	"sms-relay-server/pkg/logger"
	"sms-relay-server/pkg/phone"

	"go.uber.org/zap"
)

// Error kinds surfaced by the send orchestrator.
const (
	SendErrInvalidRequest = "InvalidRequest"
	SendErrInvalidPhone   = "InvalidPhone"
	SendErrSendFailed     = "SendFailed"
	SendErrSaveFailed     = "SaveFailed"
)

// Originator fallback when the caller supplies none.
const unknownOriginator = "UNKNOWN"

// SendCommand is a validated-on-execute request to send one message.
type SendCommand struct {
	To         string
	Message    string
	Originator string
	AccountRef string
	SentBy     string
}

// SendOutcome reports a send. Sent and Saved are independent: a message the
// provider accepted but the store rejected is Sent=true Saved=false — that
// asymmetry is real (the message exists externally but not internally) and
// is never collapsed.
type SendOutcome struct {
	Sent         bool   `json:"sent"`
	Saved        bool   `json:"saved"`
	SavedID      int64  `json:"savedId,omitempty"`
	ErrorKind    string `json:"errorType,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// SendService validates a send request, calls the outbound transport,
// persists the result and fans out the change. Each step gates the next; a
// failed transport call leaves no trace in the store.
type SendService struct {
	transport         provider.OutboundTransport
	messages          *MessageService
	defaultOriginator string
}

// NewSendService creates a new SendService. defaultOriginator fills in for
// commands that carry none; it may itself be empty.
func NewSendService(transport provider.OutboundTransport, messages *MessageService, defaultOriginator string) *SendService {
	return &SendService{
		transport:         transport,
		messages:          messages,
		defaultOriginator: strings.TrimSpace(defaultOriginator),
	}
}

// Execute runs the send pipeline: validate, parse, send, persist. The
// persistence step carries the aggregate update and event publish with it
// (best-effort, inside MessageService); the outcome reports only
// validate/send/persist.
func (s *SendService) Execute(ctx context.Context, cmd SendCommand) SendOutcome {
	if strings.TrimSpace(cmd.To) == "" || strings.TrimSpace(cmd.Message) == "" {
		return SendOutcome{ErrorKind: SendErrInvalidRequest, ErrorMessage: "recipient and message are required"}
	}

	to, err := phone.Parse(cmd.To)
	if err != nil {
		return SendOutcome{ErrorKind: SendErrInvalidPhone, ErrorMessage: err.Error()}
	}

	originator := strings.TrimSpace(cmd.Originator)
	if originator == "" {
		originator = s.defaultOriginator
	}
	if originator == "" {
		originator = unknownOriginator
	}
	sentBy := strings.TrimSpace(cmd.SentBy)

	result, err := s.transport.Send(ctx, to.E164, cmd.Message, cmd.AccountRef)
	if err != nil {
		logger.Error("Outbound send failed",
			zap.String("to", to.E164),
			zap.String("originator", originator),
			zap.Error(err))
		return SendOutcome{ErrorKind: SendErrSendFailed, ErrorMessage: err.Error()}
	}

	id, err := s.messages.SaveSent(originator, to.E164, cmd.Message, result.SubmittedAt, sentBy)
	if err != nil {
		// The provider did send it; that cannot be undone. Surface the
		// sent-but-unsaved state for manual reconciliation.
		logger.Error("Sent message could not be persisted",
			zap.String("to", to.E164),
			zap.String("provider_id", result.ProviderID),
			zap.Error(err))
		return SendOutcome{Sent: true, ErrorKind: SendErrSaveFailed, ErrorMessage: err.Error()}
	}

	return SendOutcome{Sent: true, Saved: true, SavedID: id}
}
