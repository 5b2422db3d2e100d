package mailqueue

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

// InvitationValidDays is the validity window quoted in the email. Expiry is
// enforced at acceptance, not here.
const InvitationValidDays = 7

//go:embed templates/invitation.html
var templateFS embed.FS

var invitationTmpl = template.Must(template.ParseFS(templateFS, "templates/invitation.html"))

// InvitationEmail holds the values rendered into the invitation email.
type InvitationEmail struct {
	InviterName string
	FamilyName  string
	// Code is the invitation id the recipient types into the app. Ids are
	// letters, digits, '-' and '_', which the HTML escaper leaves as is.
	Code string
}

// Render produces the subject and HTML body.
func (e InvitationEmail) Render() (Message, error) {
	var buf bytes.Buffer
	err := invitationTmpl.Execute(&buf, struct {
		InvitationEmail
		ValidDays int
	}{e, InvitationValidDays})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Subject: fmt.Sprintf("You're invited to join the %s family on EatSoon!", e.FamilyName),
		HTML:    buf.String(),
	}, nil
}
