package api

import "github.com/iudanet/handsync/internal/models"

// ChangesResponse представляет ответ на запрос изменений после курсора
type ChangesResponse struct {
	Changes []*models.ChangeRecord `json:"changes"` // Изменения в порядке получения сервером
	Cursor  int64                  `json:"cursor"`  // Курсор для следующего запроса
}

// ChecksumResponse представляет дайджест коллекции одного типа сущностей
type ChecksumResponse struct {
	EntityType string `json:"entity_type"`
	Checksum   string `json:"checksum"`
	Count      int    `json:"count"`
}

// DevicesResponse представляет список устройств пользователя
type DevicesResponse struct {
	Devices []*models.Device `json:"devices"`
}

// PushResponse представляет результат приема изменения сервером
type PushResponse struct {
	Seq       int64 `json:"seq"`       // Seq позиция изменения в журнале
	Duplicate bool  `json:"duplicate"` // Duplicate изменение уже было принято ранее
	Current   bool  `json:"current"`   // Current изменение стало текущим состоянием сущности
}

// HealthResponse представляет ответ health check
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}
