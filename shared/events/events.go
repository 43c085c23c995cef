package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Topic names. Every mutation topic is provisioned with a single partition
// so that consumers observe events in publish order; that ordering guarantee
// is the only sequencing the protocol relies on.
const (
	TopicContentMutations     = "content-mutations"
	TopicCategoryMutations    = "category-mutations"
	TopicIdentityMutations    = "identity-mutations"
	TopicApplicationMutations = "application-mutations"
	TopicEmailOutbound        = "email-outbound"
	TopicDeadLetter           = "dead-letter"
)

// Event kinds; the kind travels as the Kafka message key, the value is the
// JSON payload for exactly that kind.
const (
	KindUploadNews = "upload-news"
	KindUpdateNews = "update-news"
	KindVerifyNews = "verify-news"
	KindDeleteNews = "delete-news"

	KindCreateCategory = "create-category"
	KindUpdateCategory = "update-category"
	KindDeleteCategory = "delete-category"

	KindCreateDeviceToken = "create-device-token"
	KindDeleteDeviceToken = "delete-device-token"

	KindApplicationCreated  = "application-created"
	KindApplicationUpdated  = "application-updated"
	KindApplicationVerified = "application-verified"
	KindApplicationRejected = "application-rejected"
	KindApplicationDeleted  = "application-deleted"

	KindSendEmail = "send-email"
)

var ErrUnknownKind = errors.New("unknown event kind")

// Envelope is the unit handed to consumer dispatch: the kind recovered from
// the message key and the raw payload bytes from the message value.
type Envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type UploadNewsPayload struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	CategoryID string   `json:"categoryId"`
	Language   string   `json:"language"`
	Tags       []string `json:"tags,omitempty"`
	Location   string   `json:"location,omitempty"`
	ReportedBy string   `json:"reportedBy"`
	ImageURLs  []string `json:"imageUrls,omitempty"`
}

type UpdateNewsPayload struct {
	NewsID     string   `json:"newsId"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	CategoryID string   `json:"categoryId"`
	Language   string   `json:"language"`
	Tags       []string `json:"tags,omitempty"`
	Location   string   `json:"location,omitempty"`
	EditedBy   string   `json:"editedBy"`
	IsFake     bool     `json:"isFake"`
	ImageURLs  []string `json:"imageUrls,omitempty"`
}

type VerifyNewsPayload struct {
	NewsID     string `json:"newsId"`
	Status     string `json:"status"`
	VerifiedBy string `json:"verifiedBy"`
}

type DeleteNewsPayload struct {
	NewsID string `json:"newsId"`
}

type CreateCategoryPayload struct {
	Name   string  `json:"name"`
	Parent *string `json:"parent"`
}

type UpdateCategoryPayload struct {
	CategoryID string  `json:"categoryId"`
	Name       string  `json:"name"`
	Parent     *string `json:"parent"`
}

type DeleteCategoryPayload struct {
	CategoryID string `json:"categoryId"`
}

type CreateDeviceTokenPayload struct {
	UserID     string    `json:"userId"`
	LoginTime  time.Time `json:"loginTime"`
	IsLoggedIn bool      `json:"isLoggedIn"`
	Platform   string    `json:"platform,omitempty"`
	IP         string    `json:"ip"`
}

type DeleteDeviceTokenPayload struct {
	UserID string `json:"userId"`
	IP     string `json:"ip"`
}

type ApplicationCreatedPayload struct {
	ReporterID   string    `json:"reporterId"`
	Bio          string    `json:"bio"`
	Organization string    `json:"organization"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	Documents    []string  `json:"documents,omitempty"`
}

type ApplicationUpdatedPayload struct {
	ApplicationID string   `json:"applicationId"`
	ReporterID    string   `json:"reporterId"`
	Bio           string   `json:"bio"`
	Organization  string   `json:"organization"`
	Status        string   `json:"status"`
	Documents     []string `json:"documents,omitempty"`
}

type ApplicationVerifiedPayload struct {
	ApplicationID string `json:"applicationId"`
	VerifiedBy    string `json:"verifiedBy"`
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
	ReporterID    string `json:"reporterId"`
	Email         string `json:"email,omitempty"`
}

type ApplicationDeletedPayload struct {
	ApplicationID string `json:"applicationId"`
	ReporterID    string `json:"reporterId"`
}

type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// DeadLetterPayload wraps an envelope whose apply step exhausted its retry
// budget, together with the failure that exhausted it.
type DeadLetterPayload struct {
	Service  string          `json:"service"`
	Topic    string          `json:"topic"`
	Kind     string          `json:"kind"`
	Payload  json.RawMessage `json:"payload"`
	Error    string          `json:"error"`
	FailedAt time.Time       `json:"failedAt"`
}

// Decode returns the concrete payload struct for kind, or ErrUnknownKind.
// Consumers dispatch on the decoded type instead of trusting an untyped parse.
func Decode(kind string, raw []byte) (any, error) {
	var (
		payload any
	)
	switch kind {
	case KindUploadNews:
		payload = &UploadNewsPayload{}
	case KindUpdateNews:
		payload = &UpdateNewsPayload{}
	case KindVerifyNews:
		payload = &VerifyNewsPayload{}
	case KindDeleteNews:
		payload = &DeleteNewsPayload{}
	case KindCreateCategory:
		payload = &CreateCategoryPayload{}
	case KindUpdateCategory:
		payload = &UpdateCategoryPayload{}
	case KindDeleteCategory:
		payload = &DeleteCategoryPayload{}
	case KindCreateDeviceToken:
		payload = &CreateDeviceTokenPayload{}
	case KindDeleteDeviceToken:
		payload = &DeleteDeviceTokenPayload{}
	case KindApplicationCreated:
		payload = &ApplicationCreatedPayload{}
	case KindApplicationUpdated:
		payload = &ApplicationUpdatedPayload{}
	case KindApplicationVerified, KindApplicationRejected:
		payload = &ApplicationVerifiedPayload{}
	case KindApplicationDeleted:
		payload = &ApplicationDeletedPayload{}
	case KindSendEmail:
		payload = &SendEmailPayload{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return payload, nil
}
