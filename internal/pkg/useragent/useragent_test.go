package useragent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	uaChromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaIPhone        = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	uaIPad          = "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	uaGooglebot     = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

func TestParse_Desktop(t *testing.T) {
	t.Parallel()

	info := Parse(uaChromeWindows)
	require.Equal(t, "Chrome", info.Browser)
	require.Equal(t, "120.0.0.0", info.BrowserVersion)
	require.Contains(t, info.OS, "Windows")
	require.Equal(t, TypeDesktop, info.DeviceType)
	require.True(t, info.IsDesktop)
	require.False(t, info.IsMobile)
	require.False(t, info.IsTablet)
}

func TestParse_Mobile(t *testing.T) {
	t.Parallel()

	info := Parse(uaIPhone)
	require.Equal(t, TypeMobile, info.DeviceType)
	require.True(t, info.IsMobile)
	require.False(t, info.IsTablet)
	require.False(t, info.IsDesktop)
}

func TestParse_Tablet(t *testing.T) {
	t.Parallel()

	info := Parse(uaIPad)
	require.Equal(t, TypeTablet, info.DeviceType)
	require.True(t, info.IsTablet)
	require.False(t, info.IsMobile)
}

func TestParse_Bot(t *testing.T) {
	t.Parallel()

	info := Parse(uaGooglebot)
	require.Equal(t, TypeBot, info.DeviceType)
	require.False(t, info.IsDesktop)
}

func TestParse_UnknownAndEmpty(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "  ", "unknown"} {
		info := Parse(raw)
		require.Equal(t, TypeOther, info.DeviceType, raw)
		require.Equal(t, "Other", info.Browser, raw)
		require.False(t, info.IsMobile || info.IsTablet || info.IsDesktop, raw)
	}
}
