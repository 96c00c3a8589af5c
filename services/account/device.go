package account

import (
	"strings"

	"github.com/mileusna/useragent"
)

// ClientInfo describes where a request came from.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// DescribeDevice renders a short "Browser on OS (type)" label from a User-Agent header.
func DescribeDevice(userAgent string) string {
	if userAgent == "" {
		return "unknown"
	}

	ua := useragent.Parse(userAgent)

	var b strings.Builder
	if ua.Name != "" {
		b.WriteString(ua.Name)
		if major := strings.SplitN(ua.Version, ".", 2)[0]; major != "" {
			b.WriteString(" " + major)
		}
	} else {
		b.WriteString("unknown client")
	}
	if ua.OS != "" {
		b.WriteString(" on " + ua.OS)
	}

	switch {
	case ua.Bot:
		b.WriteString(" (bot)")
	case ua.Tablet:
		b.WriteString(" (tablet)")
	case ua.Mobile:
		b.WriteString(" (mobile)")
	case ua.Desktop:
		b.WriteString(" (desktop)")
	}

	return b.String()
}
