package mailer

import (
	"context"
	"fmt"
	"time"
)

// OTPMailer delivers one-time codes over SMTP. It satisfies the usecase
// layer's OTPSender interface.
type OTPMailer struct {
	mailer    *Mailer
	expiresIn time.Duration
}

func NewOTPMailer(mailer *Mailer, expiresIn time.Duration) *OTPMailer {
	return &OTPMailer{
		mailer:    mailer,
		expiresIn: expiresIn,
	}
}

// Deliver sends the cleartext code to the given address. The code is never
// persisted; losing this mail only costs the user a resend.
func (o *OTPMailer) Deliver(_ context.Context, email, code, purpose string) error {
	htmlBody := fmt.Sprintf(`
		<p>Hi,</p>
		<p>Your one-time code for <strong>%s</strong> is:</p>

		<p style="font-size: 24px; letter-spacing: 4px;"><strong>%s</strong></p>

		<p>This code will expire in %s. If you did not request it, you can
		safely ignore this email.</p>

		<p>Thank you,</p>
		<p>LearnHub Team</p>
	`, purpose, code, o.expiresIn)

	return o.mailer.SendHTML([]string{email}, purpose, htmlBody)
}
