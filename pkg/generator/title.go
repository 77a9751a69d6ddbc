package generator

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
)

const maxTitleLength = 50

var (
	wifiSSIDPattern = regexp.MustCompile(`S:((?:\\.|[^;])*)`)
	wifiUnescaper   = strings.NewReplacer(`\\`, `\`, `\;`, `;`, `\,`, `,`, `\:`, `:`, `\"`, `"`)
)

// Title derives a display title for text of the given kind. It falls back
// to the truncated text when no kind-specific field can be found.
func Title(kind core.Kind, text string) string {
	if t := kindTitle(kind, text); t != "" {
		return t
	}
	return truncate(strings.TrimSpace(text), maxTitleLength)
}

func kindTitle(kind core.Kind, text string) string {
	switch kind {
	case core.KindURL:
		u, err := url.Parse(strings.TrimSpace(text))
		if err != nil || u.Hostname() == "" {
			return ""
		}
		return strings.TrimPrefix(u.Hostname(), "www.")
	case core.KindWiFi:
		m := wifiSSIDPattern.FindStringSubmatch(text)
		if m == nil || m[1] == "" {
			return ""
		}
		return "WiFi: " + wifiUnescaper.Replace(m[1])
	case core.KindContact:
		if fn := field(text, "FN:"); fn != "" {
			return "Contact: " + fn
		}
	case core.KindCalendar:
		if s := field(text, "SUMMARY:"); s != "" {
			return "Event: " + s
		}
	case core.KindEmail:
		if rest, ok := cutPrefixFold(text, "mailto:"); ok {
			to, _, _ := strings.Cut(rest, "?")
			if to != "" {
				return "Email: " + to
			}
		}
	case core.KindPhone:
		if n, ok := cutPrefixFold(text, "tel:"); ok && n != "" {
			return "Phone: " + n
		}
	case core.KindSMS:
		if rest, ok := cutPrefixFold(text, "SMSTO:"); ok {
			n, _, _ := strings.Cut(rest, ":")
			if n != "" {
				return "SMS: " + n
			}
		}
	}
	return ""
}

// field returns the value of the first line starting with prefix.
func field(text, prefix string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if v, ok := cutPrefixFold(line, prefix); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// DetectKind guesses the kind of already-assembled text.
func DetectKind(text string) core.Kind {
	t := strings.TrimSpace(text)
	upper := strings.ToUpper(t)
	switch {
	case strings.HasPrefix(upper, "HTTP://"), strings.HasPrefix(upper, "HTTPS://"):
		return core.KindURL
	case strings.HasPrefix(upper, "WIFI:"):
		return core.KindWiFi
	case strings.HasPrefix(upper, "BEGIN:VCARD"):
		return core.KindContact
	case strings.HasPrefix(upper, "BEGIN:VEVENT"), strings.HasPrefix(upper, "BEGIN:VCALENDAR"):
		return core.KindCalendar
	case strings.HasPrefix(upper, "MAILTO:"):
		return core.KindEmail
	case strings.HasPrefix(upper, "TEL:"):
		return core.KindPhone
	case strings.HasPrefix(upper, "SMSTO:"), strings.HasPrefix(upper, "SMS:"):
		return core.KindSMS
	}
	return core.KindText
}
