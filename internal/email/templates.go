package email

import (
	"bytes"
	"html/template"
)

type templateData struct {
	Title string
	Link  string
}

const layout = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family: sans-serif; color: #172b4d;">
{{template "content" .}}
<p style="color: #5e6c84; font-size: 12px;">If you did not request this email you can ignore it.</p>
</body>
</html>`

var verifyEmailTemplate = mustTemplate("verify", `
<h2>Welcome to BoardSync</h2>
<p>Confirm your email address to start creating boards.</p>
<p><a href="{{.Link}}" style="background: #0c66e4; color: #fff; padding: 8px 16px; text-decoration: none; border-radius: 3px;">Verify email</a></p>
<p>Or open this link: {{.Link}}</p>`)

var resetPasswordTemplate = mustTemplate("reset", `
<h2>Reset your password</h2>
<p>Someone asked to reset the password of your BoardSync account.</p>
<p><a href="{{.Link}}" style="background: #0c66e4; color: #fff; padding: 8px 16px; text-decoration: none; border-radius: 3px;">Choose a new password</a></p>
<p>Or open this link: {{.Link}}</p>`)

func mustTemplate(name, content string) *template.Template {
	t := template.Must(template.New(name).Parse(layout))
	template.Must(t.New("content").Parse(content))
	return t
}

func render(tmpl *template.Template, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
