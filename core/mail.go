package core

import (
	"bytes"
	htmltmpl "html/template"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

const emailTemplatesDir = "templates/email"

type (
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}

	// EmailTemplates renders EmailMessage templates found in a fs.FS.
	EmailTemplates struct {
		fsys    fs.FS
		appName string
		baseURL string

		once sync.Once
		text map[string]*texttmpl.Template
		html map[string]*htmltmpl.Template
		err  error
	}

	templateContext struct {
		AppName         string
		FrontendBaseURL string
		Data            interface{}
	}
)

func NewEmailTemplates(fsys fs.FS, appName, frontendBaseURL string) *EmailTemplates {
	return &EmailTemplates{fsys: fsys, appName: appName, baseURL: frontendBaseURL}
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }

// Render fills TextContent & HTMLContent. Templates are parsed on first use.
func (et *EmailTemplates) Render(m *EmailMessage) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
	}
	if m.TemplateName == "" {
		return nil
	}
	et.once.Do(et.parse)
	if et.err != nil {
		return et.err
	}

	ctx := templateContext{AppName: et.appName, FrontendBaseURL: et.baseURL, Data: m.TemplateData}
	if tmpl, ok := et.text[m.TemplateName]; ok && m.BodyStr == "" {
		var buff bytes.Buffer
		if err := tmpl.ExecuteTemplate(&buff, "base", ctx); err != nil {
			return errors.Wrapf(err, "rendering %s.txt", m.TemplateName)
		}
		m.TextContent = buff.String()
	}
	if tmpl, ok := et.html[m.TemplateName]; ok {
		var buff bytes.Buffer
		if err := tmpl.ExecuteTemplate(&buff, "base", ctx); err != nil {
			return errors.Wrapf(err, "rendering %s.gohtml", m.TemplateName)
		}
		m.HTMLContent = buff.String()
	}
	return nil
}

func (et *EmailTemplates) parse() {
	et.text = make(map[string]*texttmpl.Template)
	et.html = make(map[string]*htmltmpl.Template)

	fps, err := fs.Glob(et.fsys, path.Join(emailTemplatesDir, "*"))
	if err != nil {
		et.err = errors.Wrap(err, "listing email templates")
		return
	}

	for _, fp := range fps {
		fname := path.Base(fp)
		ext := path.Ext(fname)
		if strings.HasPrefix(fname, "_") || !(ext == ".txt" || ext == ".gohtml") {
			continue
		}
		name := strings.TrimSuffix(fname, ext)
		base := path.Join(emailTemplatesDir, "_base"+ext)

		if ext == ".txt" {
			tmpl, err := texttmpl.ParseFS(et.fsys, base, fp)
			if err != nil {
				et.err = errors.Wrapf(err, "parsing %s", fp)
				return
			}
			et.text[name] = tmpl.Option("missingkey=error")
		} else {
			tmpl, err := htmltmpl.ParseFS(et.fsys, base, fp)
			if err != nil {
				et.err = errors.Wrapf(err, "parsing %s", fp)
				return
			}
			et.html[name] = tmpl.Option("missingkey=error")
		}
	}
}
