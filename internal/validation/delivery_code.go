// Package validation содержит функции проверки кода подтверждения доставки.
package validation

import (
	"errors"
	"strings"
)

// CodeLength задаёт длину кода подтверждения доставки.
const CodeLength = 6

const codeMask = "******"

var (
	// ErrEmptyCode возвращается, если код подтверждения не введён.
	ErrEmptyCode = errors.New("please enter the verification code")
	// ErrCodeMismatch возвращается при неверном коде подтверждения.
	ErrCodeMismatch = errors.New("invalid verification code, please check the last 6 characters of the order ID")
)

// DeliveryCode возвращает ожидаемый код: последние шесть символов идентификатора
// или весь идентификатор, если он короче.
func DeliveryCode(displayID string) string {
	r := []rune(displayID)
	if len(r) <= CodeLength {
		return displayID
	}
	return string(r[len(r)-CodeLength:])
}

// MaskDisplayID скрывает код в идентификаторе, оставляя видимым только префикс.
func MaskDisplayID(displayID string) string {
	r := []rune(displayID)
	if len(r) <= CodeLength {
		return codeMask
	}
	return string(r[:len(r)-CodeLength]) + codeMask
}

// CheckDeliveryCode сравнивает введённый код с ожидаемым как строки,
// отбрасывая пробелы по краям ввода.
func CheckDeliveryCode(displayID, input string) error {
	code := strings.TrimSpace(input)
	if code == "" {
		return ErrEmptyCode
	}
	if code != DeliveryCode(displayID) {
		return ErrCodeMismatch
	}
	return nil
}
