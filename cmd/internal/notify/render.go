package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"sessiond/cmd/identity"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

var subjects = map[identity.NotifyKind]string{
	identity.NotifyWelcome: "Welcome to %s",
	identity.NotifyLogout:  "You were signed out of %s",
}

// Message is a rendered notification.
type Message struct {
	To      string
	Subject string
	HTML    string
	Tag     string
}

type view struct {
	Name    string
	Product string
	Support string
}

// Render builds the message for kind. data["name"] is the recipient's
// display name.
func Render(kind identity.NotifyKind, to string, data map[string]string, product, support string) (Message, error) {
	subject, ok := subjects[kind]
	if !ok {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	var buf bytes.Buffer
	v := view{Name: data["name"], Product: product, Support: support}
	if err := templates.ExecuteTemplate(&buf, string(kind)+".html", v); err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf(subject, product),
		HTML:    buf.String(),
		Tag:     string(kind),
	}, nil
}
