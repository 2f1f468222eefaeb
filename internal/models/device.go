package models

import (
	"time"

	"github.com/google/uuid"
)

// Unknown подставляется вместо отсутствующего user-agent или IP.
const Unknown = "unknown"

// Device — устройство, с которого пользователь входил в систему.
// Уникально по (RawUserAgent, IPAddress, UserID).
type Device struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	Browser        string    `json:"browser"`
	BrowserVersion string    `json:"browser_version"`
	OS             string    `json:"os"`
	DeviceType     string    `json:"device_type"`
	IsMobile       bool      `json:"is_mobile"`
	IsTablet       bool      `json:"is_tablet"`
	IsDesktop      bool      `json:"is_desktop"`
	RawUserAgent   string    `json:"raw_user_agent"`
	IPAddress      string    `json:"ip_address"`
	LastSeen       time.Time `json:"last_seen"`
}

// ClientInfo — сведения о клиенте, извлечённые транспортом из запроса.
type ClientInfo struct {
	UserAgent string
	IP        string
}
