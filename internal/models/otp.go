package models

// IssueResult is returned when a code has been delivered and recorded.
type IssueResult struct {
	Accepted       bool   `json:"accepted"`
	CorrectedPhone string `json:"corrected_phone"`
	DisplayPhone   string `json:"display_phone,omitempty"`
	DeliveryID     string `json:"delivery_id"`
	ExpiresIn      int64  `json:"expires_in"`
}

// VerifyResult is returned on a successful verification. The token fields are
// set only when verification tokens are enabled.
type VerifyResult struct {
	Verified          bool   `json:"verified"`
	Phone             string `json:"phone"`
	VerificationToken string `json:"verification_token,omitempty"`
	TokenType         string `json:"token_type,omitempty"`
	ExpiresIn         int64  `json:"expires_in,omitempty"`
}

type VerifiedStatus struct {
	Phone    string `json:"phone"`
	Verified bool   `json:"verified"`
}
