package validation

import (
	"fmt"
	"regexp"
)

// EntityTypePattern определяет допустимый формат типа сущности
// Латинская буква, затем буквы, цифры или подчеркивание. Длина: 1-64 символа
var EntityTypePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,63}$`)

// IdentifierPattern определяет допустимый формат идентификатора сущности или устройства.
// Идентификатор попадает в URL и ключи объектов S3, поэтому '/' и пробелы запрещены.
var IdentifierPattern = regexp.MustCompile(`^[a-zA-Z0-9._:-]+$`)

const (
	// MaxEntityIDLen максимальная длина идентификатора сущности
	MaxEntityIDLen = 128
	// MaxDeviceIDLen максимальная длина идентификатора устройства
	MaxDeviceIDLen = 64
)

// ValidateEntityType проверяет имя типа сущности (категории синхронизации)
func ValidateEntityType(entityType string) error {
	if entityType == "" {
		return fmt.Errorf("entity type cannot be empty")
	}

	if !EntityTypePattern.MatchString(entityType) {
		return fmt.Errorf("entity type %q must start with a letter and contain only letters, numbers and underscores (max 64)", entityType)
	}

	return nil
}

// ValidateEntityID проверяет идентификатор сущности внутри типа
func ValidateEntityID(entityID string) error {
	return validateIdentifier("entity id", entityID, MaxEntityIDLen)
}

// ValidateDeviceID проверяет идентификатор устройства
func ValidateDeviceID(deviceID string) error {
	return validateIdentifier("device id", deviceID, MaxDeviceIDLen)
}

// ValidateEntityKey проверяет пару тип + идентификатор
func ValidateEntityKey(entityType, entityID string) error {
	if err := ValidateEntityType(entityType); err != nil {
		return err
	}
	return ValidateEntityID(entityID)
}

func validateIdentifier(what, value string, maxLen int) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", what)
	}

	if len(value) > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", what, maxLen)
	}

	if !IdentifierPattern.MatchString(value) {
		return fmt.Errorf("%s can only contain letters, numbers, '.', '_', ':' and '-'", what)
	}

	return nil
}
