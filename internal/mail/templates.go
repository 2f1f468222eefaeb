package mail

import (
	"bytes"
	"embed"
	"fmt"
	htmltpl "html/template"
	texttpl "text/template"
)

//go:embed templates/*
var templatesFS embed.FS

// Kind — вид письма.
type Kind string

const (
	KindVerification  Kind = "verification"
	KindPasswordReset Kind = "password_reset"
)

var subjects = map[Kind]string{
	KindVerification:  "Verify your email address to activate your account",
	KindPasswordReset: "Reset your password",
}

// LinkData — данные шаблона письма со ссылкой.
type LinkData struct {
	FirstName string
	Link      string
}

// Renderer собирает письма из встроенных шаблонов.
type Renderer struct {
	html *htmltpl.Template
	text *texttpl.Template
}

// NewRenderer разбирает встроенные шаблоны.
func NewRenderer() (*Renderer, error) {
	const op = "mail.NewRenderer"

	html, err := htmltpl.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	text, err := texttpl.ParseFS(templatesFS, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Renderer{html: html, text: text}, nil
}

// Render собирает письмо вида kind для адресата to.
func (r *Renderer) Render(kind Kind, to string, data LinkData) (Message, error) {
	const op = "mail.Render"

	subject, ok := subjects[kind]
	if !ok {
		return Message{}, fmt.Errorf("%s: unknown kind %q", op, kind)
	}

	var html, text bytes.Buffer
	if err := r.html.ExecuteTemplate(&html, string(kind)+".html", data); err != nil {
		return Message{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := r.text.ExecuteTemplate(&text, string(kind)+".txt", data); err != nil {
		return Message{}, fmt.Errorf("%s: %w", op, err)
	}

	return Message{
		Kind:    kind,
		To:      to,
		Subject: subject,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}
