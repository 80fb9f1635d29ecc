package models

import "time"

// DeviceClass тип устройства
type DeviceClass string

const (
	DeviceClassDesktop DeviceClass = "desktop"
	DeviceClassMobile  DeviceClass = "mobile"
	DeviceClassTablet  DeviceClass = "tablet"
	DeviceClassCLI     DeviceClass = "cli"
)

// Device представляет устройство пользователя, участвующее в синхронизации.
// Создается при первом рукопожатии и никогда не удаляется автоматически:
// устаревание видно только по LastSeen.
type Device struct {
	LastSeen     time.Time   `json:"last_seen"`              // LastSeen время последнего сообщения от устройства
	ID           string      `json:"device_id"`              // ID идентификатор устройства
	Name         string      `json:"name"`                   // Name отображаемое имя
	Class        DeviceClass `json:"class"`                  // Class тип устройства
	Capabilities []string    `json:"capabilities,omitempty"` // Capabilities список возможностей, например "realtime"
	Priority     int         `json:"priority"`               // Priority приоритет при разрешении конфликтов
	IsOnline     bool        `json:"is_online"`              // IsOnline устройство на связи
}

// Clone создает глубокую копию устройства
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}

	clone := *d
	if d.Capabilities != nil {
		clone.Capabilities = make([]string, len(d.Capabilities))
		copy(clone.Capabilities, d.Capabilities)
	}
	return &clone
}
