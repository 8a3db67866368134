package mail

import (
	"bytes"
	"html/template"
	"strings"
)

const passwordResetSubject = "Reset your password"

var passwordResetTemplate = template.Must(template.New("password_reset").Parse(`<div style="font-family: Arial, sans-serif; max-width: 480px; margin: 0 auto; background: #f9fafb; padding: 24px; border-radius: 10px; border: 1px solid #e5e7eb;">
  <h2 style="color: #111827;">Hello{{if .Name}}, {{.Name}}{{end}}</h2>
  <p style="color: #374151; line-height: 1.6;">You recently requested to reset your password for your <b>{{.Brand}}</b> account.</p>
  <p style="color: #374151; line-height: 1.6;">Click the button below to set a new password:</p>
  <p style="text-align: center; margin: 32px 0;">
    <a href="{{.ResetURL}}" target="_blank" rel="noopener noreferrer" style="background: #2563eb; color: #ffffff; padding: 12px 24px; text-decoration: none; border-radius: 6px; font-weight: 600;">Reset Password</a>
  </p>
  <p style="color: #6b7280; font-size: 14px; line-height: 1.5;">This link will expire in <b>{{.ExpiresIn}}</b>. If you didn't request a password reset, you can safely ignore this email and your password will remain unchanged.</p>
  <hr style="margin: 24px 0; border: none; border-top: 1px solid #e5e7eb;" />
  <p style="color: #9ca3af; font-size: 12px; text-align: center;">This email was sent automatically by {{.Brand}}. Please do not reply.</p>
</div>
`))

type passwordResetData struct {
	Name      string
	Brand     string
	ResetURL  string
	ExpiresIn string
}

func renderPasswordReset(data passwordResetData) (string, error) {
	data.Name = strings.TrimSpace(data.Name)
	var buf bytes.Buffer
	if err := passwordResetTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
