package email

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

//go:embed templates/*
var templateFS embed.FS

var (
	inviteHTML = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/invite.html"))
	inviteText = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/invite.txt"))
)

// Defaults applied to InviteData.
const (
	DefaultAoRName       = "Authority of Record"
	DefaultExpiresInDays = 7
	DefaultRole          = "Subcontractor"
)

// InviteData is the input of the invitation templates.
type InviteData struct {
	Email         string
	InviteURL     string
	AoRName       string
	Role          string
	ExpiresInDays int
}

func (d *InviteData) applyDefaults() {
	if d.AoRName == "" {
		d.AoRName = DefaultAoRName
	}
	if d.ExpiresInDays <= 0 {
		d.ExpiresInDays = DefaultExpiresInDays
	}
	if d.Role == "" {
		d.Role = DefaultRole
	}
}

// InviteSubject returns the subject line for an invitation from aorName.
func InviteSubject(aorName string) string {
	if aorName == "" {
		aorName = DefaultAoRName
	}
	return "Invitation à rejoindre le réseau de " + aorName
}

// RenderInvite renders the HTML and text bodies of an invitation.
func RenderInvite(d InviteData) (*Message, error) {
	d.applyDefaults()
	var html, text bytes.Buffer
	if err := inviteHTML.Execute(&html, d); err != nil {
		return nil, fmt.Errorf("render invite html: %w", err)
	}
	if err := inviteText.Execute(&text, d); err != nil {
		return nil, fmt.Errorf("render invite text: %w", err)
	}
	return &Message{
		To:      d.Email,
		Subject: InviteSubject(d.AoRName),
		HTML:    strings.TrimSpace(html.String()),
		Text:    strings.TrimSpace(text.String()),
	}, nil
}
