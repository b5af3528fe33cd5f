package emailsvc

import (
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

// Options configures the email services.
type Options struct {
	From          mail.Address
	SubjectPrefix string
	Templates     *core.EmailTemplates
	Logger        core.Logger
}

func OptionsFromConfig(conf *core.Config, templates *core.EmailTemplates, logger core.Logger) Options {
	return Options{
		From:          conf.FromEmail(),
		SubjectPrefix: "[" + conf.AppName + "] ",
		Templates:     templates,
		Logger:        logger,
	}
}

func (o Options) logger() core.Logger {
	if o.Logger == nil {
		return core.NopLogger
	}
	return o.Logger
}

// render fills the message contents; it reports whether the message should be sent.
func (o Options) render(msg *core.EmailMessage) bool {
	var err error
	if o.Templates != nil {
		err = o.Templates.Render(msg)
	} else if msg.BodyStr != "" {
		msg.TextContent = msg.BodyStr
	}
	if err != nil {
		o.logger().Error(fmt.Sprintf("rendering email: %v", err), err)
		return false
	}
	return msg.HasRecipients() && msg.HasContent()
}

type ConsoleService struct {
	opts Options
	out  io.Writer
	sync bool

	mu   sync.Mutex
	sent []core.EmailMessage
}

var _ core.EmailService = (*ConsoleService)(nil)

// NewConsoleService prints messages to out (the std logger when nil).
func NewConsoleService(opts Options, out io.Writer) *ConsoleService {
	return &ConsoleService{opts: opts, out: out}
}

// NewConsoleServiceMock sends synchronously and prints nothing; see Sent.
func NewConsoleServiceMock(opts Options) *ConsoleService {
	return &ConsoleService{opts: opts, out: io.Discard, sync: true}
}

func (svc *ConsoleService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		if svc.sync {
			svc.sendMessage(msg)
		} else {
			go svc.sendMessage(msg)
		}
	}
}

// Sent returns the messages sent so far.
func (svc *ConsoleService) Sent() []core.EmailMessage {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return append([]core.EmailMessage(nil), svc.sent...)
}

func (svc *ConsoleService) Reset() {
	svc.mu.Lock()
	svc.sent = nil
	svc.mu.Unlock()
}

func (svc *ConsoleService) sendMessage(msg *core.EmailMessage) {
	if !svc.opts.render(msg) {
		return
	}
	body, err := svc.format(*msg)
	if err != nil {
		svc.opts.logger().Error(fmt.Sprintf("formatting email: %v", err), err)
		return
	}
	if svc.out == nil {
		log.Println(body)
	} else {
		_, _ = fmt.Fprintln(svc.out, body)
	}

	svc.mu.Lock()
	svc.sent = append(svc.sent, *msg)
	svc.mu.Unlock()
}

func (svc *ConsoleService) format(msg core.EmailMessage) (string, error) {
	body := new(strings.Builder)
	altW := multipart.NewWriter(body)

	// Write mail header
	_, _ = fmt.Fprintf(body, "From: %s\r\n", svc.opts.From.String())
	_, _ = fmt.Fprint(body, "MIME-Version: 1.0\r\n")
	_, _ = fmt.Fprintf(body, "Date: %s\r\n", core.NowFunc().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(body, "Subject: %s\r\n", svc.opts.SubjectPrefix+msg.Subject)
	_, _ = fmt.Fprintf(body, "To: %s\r\n", joinAddresses(msg.To))
	if len(msg.Cc) > 0 {
		_, _ = fmt.Fprintf(body, "CC: %s\r\n", joinAddresses(msg.Cc))
	}
	if len(msg.Bcc) > 0 {
		_, _ = fmt.Fprintf(body, "BCC: %s\r\n", joinAddresses(msg.Bcc))
	}
	_, _ = fmt.Fprintf(body, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", altW.Boundary())

	w, err := altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=utf-8"}})
	if err != nil {
		return "", errors.Wrap(err, "creating text/plain part")
	}
	_, _ = fmt.Fprintf(w, "%s\r\n", msg.TextContent)

	if msg.HTMLContent != "" {
		w, err = altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=utf-8"}})
		if err != nil {
			return "", errors.Wrap(err, "creating text/html part")
		}
		_, _ = fmt.Fprintf(w, "%s\r\n", msg.HTMLContent)
	}
	if err = altW.Close(); err != nil {
		return "", errors.Wrap(err, "closing multipart writer")
	}
	return body.String(), nil
}

func joinAddresses(addrs []mail.Address) string {
	toJoin := make([]string, 0, len(addrs))
	for _, a := range addrs {
		toJoin = append(toJoin, a.String())
	}
	return strings.Join(toJoin, ", ")
}
