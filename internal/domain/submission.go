package domain

import "time"

type WebhookStatus string

const (
	WebhookStatusPending WebhookStatus = "pending"
	WebhookStatusSuccess WebhookStatus = "success"
	WebhookStatusFailed  WebhookStatus = "failed"
)

func (s WebhookStatus) String() string {
	return string(s)
}

// FormSubmission is a recorded form post. WebhookStatus stays empty when the
// form has no webhook configured. Records are never mutated after creation.
type FormSubmission struct {
	ID              string         `json:"id"`
	SiteID          string         `json:"siteId"`
	FormID          string         `json:"formId"`
	FormLabel       string         `json:"formLabel"`
	PageTitle       string         `json:"pageTitle"`
	Data            map[string]any `json:"data"`
	SubmittedAt     time.Time      `json:"submittedAt"`
	WebhookStatus   WebhookStatus  `json:"webhookStatus,omitempty"`
	WebhookResponse string         `json:"webhookResponse,omitempty"`
	Source          string         `json:"source,omitempty"`
}
