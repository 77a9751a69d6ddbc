package generator

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
)

// Payload is structured content that encodes into QR text.
type Payload interface {
	Kind() core.Kind
	Validate() error
	Encode() string
}

// URLPayload is a web address.
type URLPayload struct {
	URL string
}

func (URLPayload) Kind() core.Kind { return core.KindURL }

func (p URLPayload) Validate() error {
	u, err := url.Parse(strings.TrimSpace(p.URL))
	if err != nil || u.Host == "" {
		return core.Validation("url", "not an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return core.Validation("url", "scheme must be http or https")
	}
	return nil
}

func (p URLPayload) Encode() string { return strings.TrimSpace(p.URL) }

// TextPayload is free-form text.
type TextPayload struct {
	Text string
}

func (TextPayload) Kind() core.Kind { return core.KindText }

func (p TextPayload) Validate() error {
	if strings.TrimSpace(p.Text) == "" {
		return core.Validation("text", "empty")
	}
	return nil
}

func (p TextPayload) Encode() string { return p.Text }

// WiFi security modes.
const (
	SecurityWPA  = "WPA"
	SecurityWEP  = "WEP"
	SecurityOpen = "nopass"
)

// WiFiPayload describes a network to join.
type WiFiPayload struct {
	SSID     string
	Password string
	// Security is WPA, WEP or nopass; empty means WPA.
	Security string
	Hidden   bool
}

func (WiFiPayload) Kind() core.Kind { return core.KindWiFi }

func (p WiFiPayload) security() string {
	if p.Security == "" {
		return SecurityWPA
	}
	return p.Security
}

func (p WiFiPayload) Validate() error {
	if strings.TrimSpace(p.SSID) == "" {
		return core.Validation("ssid", "network name is required")
	}
	switch p.security() {
	case SecurityWPA, SecurityWEP:
		if p.Password == "" {
			return core.Validation("password", "required unless the network is open")
		}
	case SecurityOpen:
	default:
		return core.Validation("security", "must be WPA, WEP or nopass")
	}
	return nil
}

var wifiEscaper = strings.NewReplacer(`\`, `\\`, `;`, `\;`, `,`, `\,`, `:`, `\:`, `"`, `\"`)

func (p WiFiPayload) Encode() string {
	var b strings.Builder
	b.WriteString("WIFI:T:")
	b.WriteString(p.security())
	b.WriteString(";S:")
	b.WriteString(wifiEscaper.Replace(p.SSID))
	b.WriteString(";")
	if p.security() != SecurityOpen {
		b.WriteString("P:")
		b.WriteString(wifiEscaper.Replace(p.Password))
		b.WriteString(";")
	}
	if p.Hidden {
		b.WriteString("H:true;")
	}
	b.WriteString(";")
	return b.String()
}

// ContactPayload is a vCard 3.0 contact.
type ContactPayload struct {
	Name         string
	Phone        string
	Email        string
	Organization string
	URL          string
}

func (ContactPayload) Kind() core.Kind { return core.KindContact }

func (p ContactPayload) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return core.Validation("name", "contact name is required")
	}
	if p.Email != "" {
		if _, err := mail.ParseAddress(p.Email); err != nil {
			return core.Validation("email", "invalid address")
		}
	}
	if p.Phone != "" && !phonePattern.MatchString(p.Phone) {
		return core.Validation("phone", "invalid number")
	}
	return nil
}

var vcardEscaper = strings.NewReplacer(`\`, `\\`, `,`, `\,`, `;`, `\;`, "\r\n", `\n`, "\n", `\n`)

func (p ContactPayload) Encode() string {
	lines := []string{"BEGIN:VCARD", "VERSION:3.0", "FN:" + vcardEscaper.Replace(p.Name)}
	if p.Organization != "" {
		lines = append(lines, "ORG:"+vcardEscaper.Replace(p.Organization))
	}
	if p.Phone != "" {
		lines = append(lines, "TEL:"+p.Phone)
	}
	if p.Email != "" {
		lines = append(lines, "EMAIL:"+p.Email)
	}
	if p.URL != "" {
		lines = append(lines, "URL:"+vcardEscaper.Replace(p.URL))
	}
	lines = append(lines, "END:VCARD")
	return strings.Join(lines, "\n")
}

// CalendarPayload is a single VEVENT.
type CalendarPayload struct {
	Title string
	Start time.Time
	// End defaults to one hour after Start.
	End         time.Time
	Location    string
	Description string
}

func (CalendarPayload) Kind() core.Kind { return core.KindCalendar }

func (p CalendarPayload) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return core.Validation("title", "event title is required")
	}
	if p.Start.IsZero() {
		return core.Validation("start", "start time is required")
	}
	if !p.End.IsZero() && p.End.Before(p.Start) {
		return core.Validation("end", "ends before it starts")
	}
	return nil
}

const icsTime = "20060102T150405Z"

func (p CalendarPayload) Encode() string {
	end := p.End
	if end.IsZero() {
		end = p.Start.Add(time.Hour)
	}
	lines := []string{
		"BEGIN:VEVENT",
		"SUMMARY:" + vcardEscaper.Replace(p.Title),
		"DTSTART:" + p.Start.UTC().Format(icsTime),
		"DTEND:" + end.UTC().Format(icsTime),
	}
	if p.Location != "" {
		lines = append(lines, "LOCATION:"+vcardEscaper.Replace(p.Location))
	}
	if p.Description != "" {
		lines = append(lines, "DESCRIPTION:"+vcardEscaper.Replace(p.Description))
	}
	lines = append(lines, "END:VEVENT")
	return strings.Join(lines, "\n")
}

// EmailPayload is a mailto link.
type EmailPayload struct {
	To      string
	Subject string
	Body    string
}

func (EmailPayload) Kind() core.Kind { return core.KindEmail }

func (p EmailPayload) Validate() error {
	if _, err := mail.ParseAddress(p.To); err != nil {
		return core.Validation("to", "invalid address")
	}
	return nil
}

func (p EmailPayload) Encode() string {
	q := url.Values{}
	if p.Subject != "" {
		q.Set("subject", p.Subject)
	}
	if p.Body != "" {
		q.Set("body", p.Body)
	}
	s := "mailto:" + p.To
	if len(q) > 0 {
		s += "?" + strings.ReplaceAll(q.Encode(), "+", "%20")
	}
	return s
}

var phonePattern = regexp.MustCompile(`^\+?[0-9()\-.\s]{3,20}$`)

// normalizePhone drops formatting characters.
func normalizePhone(n string) string {
	return strings.Map(func(r rune) rune {
		if r == '+' || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, n)
}

// PhonePayload is a tel link.
type PhonePayload struct {
	Number string
}

func (PhonePayload) Kind() core.Kind { return core.KindPhone }

func (p PhonePayload) Validate() error {
	if !phonePattern.MatchString(p.Number) {
		return core.Validation("number", "invalid phone number")
	}
	return nil
}

func (p PhonePayload) Encode() string { return "tel:" + normalizePhone(p.Number) }

// SMSPayload is a prefilled text message.
type SMSPayload struct {
	Number  string
	Message string
}

func (SMSPayload) Kind() core.Kind { return core.KindSMS }

func (p SMSPayload) Validate() error {
	if !phonePattern.MatchString(p.Number) {
		return core.Validation("number", "invalid phone number")
	}
	return nil
}

func (p SMSPayload) Encode() string {
	return fmt.Sprintf("SMSTO:%s:%s", normalizePhone(p.Number), p.Message)
}
