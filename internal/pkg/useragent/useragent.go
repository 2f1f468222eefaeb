// useragent разбирает заголовок User-Agent в поля устройства.
package useragent

import (
	"strings"

	ua "github.com/mssola/useragent"
)

// Типы устройств.
const (
	TypeDesktop = "desktop"
	TypeMobile  = "mobile"
	TypeTablet  = "tablet"
	TypeBot     = "bot"
	TypeOther   = "other"
)

const other = "Other"

// Info — результат разбора user-agent.
type Info struct {
	Browser        string
	BrowserVersion string
	OS             string
	DeviceType     string
	IsMobile       bool
	IsTablet       bool
	IsDesktop      bool
}

// Parse разбирает строку user-agent.
// Пустая строка и "unknown" дают Info с типом other.
func Parse(raw string) Info {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "unknown") {
		return Info{Browser: other, OS: other, DeviceType: TypeOther}
	}

	u := ua.New(raw)

	name, version := u.Browser()
	info := Info{
		Browser:        orOther(name),
		BrowserVersion: version,
		OS:             orOther(u.OS()),
	}

	switch {
	case u.Bot():
		info.DeviceType = TypeBot
	case isTablet(raw):
		info.DeviceType = TypeTablet
		info.IsTablet = true
	case u.Mobile():
		info.DeviceType = TypeMobile
		info.IsMobile = true
	case u.OS() != "":
		info.DeviceType = TypeDesktop
		info.IsDesktop = true
	default:
		info.DeviceType = TypeOther
	}

	return info
}

// isTablet: iPad либо Android без маркера Mobile.
func isTablet(raw string) bool {
	l := strings.ToLower(raw)
	if strings.Contains(l, "ipad") || strings.Contains(l, "tablet") {
		return true
	}

	return strings.Contains(l, "android") && !strings.Contains(l, "mobile")
}

func orOther(s string) string {
	if s == "" {
		return other
	}

	return s
}
