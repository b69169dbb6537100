package mail

import "fmt"

// VerificationEmail renders the account verification message around the
// one-shot link. The link expires after ten minutes.
func VerificationEmail(link string) (html, text string) {
	html = fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2>Verify your account</h2>
    <p>Click the button below to verify your Tasknest account:</p>
    <div style="text-align: center; margin: 30px 0;">
      <a href="%s" style="background-color: #007bff; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; font-weight: bold;">Verify Account</a>
    </div>
    <p>Or paste this link into your browser:</p>
    <p style="word-break: break-all;">%s</p>
    <p style="color: #dc3545;">This link expires in 10 minutes.</p>
    <p>If you did not create an account, you can ignore this email.</p>
  </div>
</body>
</html>`, link, link)

	text = fmt.Sprintf(`Verify your account

Open this link to verify your Tasknest account:
%s

This link expires in 10 minutes.

If you did not create an account, ignore this email.
`, link)
	return html, text
}

// ResetEmail renders the password reset message around the one-shot link.
func ResetEmail(link string) (html, text string) {
	html = fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2>Password Reset Request</h2>
    <p>You requested a password reset for your account. Click below to choose a new password:</p>
    <div style="text-align: center; margin: 30px 0;">
      <a href="%s" style="background-color: #007bff; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; font-weight: bold;">Reset Password</a>
    </div>
    <p>Or paste this link into your browser:</p>
    <p style="word-break: break-all;">%s</p>
    <p style="color: #dc3545;">This link expires in 10 minutes.</p>
    <p>If you did not request this reset, ignore this email or contact support.</p>
  </div>
</body>
</html>`, link, link)

	text = fmt.Sprintf(`Password Reset Request

Reset your password by visiting this link:
%s

This link expires in 10 minutes.

If you did not request this password reset, ignore this email.
`, link)
	return html, text
}
