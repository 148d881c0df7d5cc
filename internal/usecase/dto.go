package usecase

// SubmitContactInput mirrors the public contact form. The website field is a
// honeypot: it is hidden from humans, so any value means a bot filled it.
type SubmitContactInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Website string `json:"website"`
	Message string `json:"message"`
}

// SubmissionMetadata carries request-scoped context that is not part of the
// form itself.
type SubmissionMetadata struct {
	ClientIP      string
	UserAgent     string
	CorrelationID string
}

type SubmitContactOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
