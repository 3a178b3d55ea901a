package sms

import (
	"context"
	"errors"
	"strings"
)

// Placeholder marks where the code goes in a message template.
const Placeholder = "{otp}"

var (
	ErrNoCode        = errors.New("sms: message has no code")
	ErrNoDestination = errors.New("sms: message has no destination")
)

// Message is one code delivery. An empty Code asks the provider to generate
// one, which only providers implementing CodeIssuer can do.
type Message struct {
	To         string
	Template   string
	Code       string
	SenderName string
}

// Receipt identifies an accepted delivery. Code is the code that was sent,
// either the one supplied or the one the provider generated.
type Receipt struct {
	ID   string
	Code string
}

type Sender interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}

// CodeIssuer is implemented by senders that can generate the code themselves.
type CodeIssuer interface {
	IssuesCodes() bool
}

// CanIssueCodes reports whether s generates codes when Message.Code is empty.
func CanIssueCodes(s Sender) bool {
	ci, ok := s.(CodeIssuer)
	return ok && ci.IssuesCodes()
}

// Render substitutes the first placeholder in template with code.
func Render(template, code string) string {
	return strings.Replace(template, Placeholder, code, 1)
}
