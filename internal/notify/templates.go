package notify

import (
	"bytes"
	htmltemplate "html/template"
	texttemplate "text/template"
)

// WelcomeData 欢迎邮件内容
type WelcomeData struct {
	Name              string
	Username          string
	TemporaryPassword string
	Department        string
	Role              string
	LoginURL          string
	// Resend 为 true 时表示管理员重发登录凭证
	Resend bool
}

const welcomeHTML = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>{{if .Resend}}Your Rodeo Drive CRM sign-in details{{else}}Welcome to Rodeo Drive CRM{{end}}</h2>
  <p>Hello {{.Name}},</p>
  <p>{{if .Resend}}A new temporary password has been issued for your account.{{else}}An account has been created for you.{{end}}</p>
  <table cellpadding="4">
    <tr><td><strong>Username</strong></td><td>{{.Username}}</td></tr>
    <tr><td><strong>Temporary password</strong></td><td><code>{{.TemporaryPassword}}</code></td></tr>
    {{if .Department}}<tr><td><strong>Department</strong></td><td>{{.Department}}</td></tr>{{end}}
    {{if .Role}}<tr><td><strong>Role</strong></td><td>{{.Role}}</td></tr>{{end}}
  </table>
  <p>You will be asked to choose a new password the first time you sign in.</p>
  <p><a href="{{.LoginURL}}">Sign in to Rodeo Drive CRM</a></p>
</body>
</html>
`

const welcomeText = `Hello {{.Name}},

{{if .Resend}}A new temporary password has been issued for your Rodeo Drive CRM account.{{else}}An account has been created for you on Rodeo Drive CRM.{{end}}

Username: {{.Username}}
Temporary password: {{.TemporaryPassword}}
{{- if .Department}}
Department: {{.Department}}{{end}}
{{- if .Role}}
Role: {{.Role}}{{end}}

You will be asked to choose a new password the first time you sign in.
Sign in: {{.LoginURL}}
`

var (
	welcomeHTMLTmpl = htmltemplate.Must(htmltemplate.New("welcome.html").Parse(welcomeHTML))
	welcomeTextTmpl = texttemplate.Must(texttemplate.New("welcome.txt").Parse(welcomeText))
)

// WelcomeEmail 渲染欢迎邮件（HTML + 纯文本）
func WelcomeEmail(to string, data WelcomeData) (Email, error) {
	var html, text bytes.Buffer
	if err := welcomeHTMLTmpl.Execute(&html, data); err != nil {
		return Email{}, err
	}
	if err := welcomeTextTmpl.Execute(&text, data); err != nil {
		return Email{}, err
	}

	subject := "Welcome to Rodeo Drive CRM"
	if data.Resend {
		subject = "Your Rodeo Drive CRM sign-in details"
	}

	return Email{
		To:      to,
		Subject: subject,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}
