package model

import "strings"

// OrderStatus описывает канонический статус заказа.
type OrderStatus string

const (
	StatusUnassigned OrderStatus = "UNASSIGNED"
	StatusAccepted   OrderStatus = "ACCEPTED"
	StatusAssigned   OrderStatus = "ASSIGNED"
	StatusPickedUp   OrderStatus = "PICKED_UP"
	StatusDelivered  OrderStatus = "DELIVERED"
	StatusDeclined   OrderStatus = "DECLINED"
	StatusUnknown    OrderStatus = "UNKNOWN"
)

var statusVocabulary = map[string]OrderStatus{
	"":           StatusUnassigned,
	"unassigned": StatusUnassigned,
	"pending":    StatusUnassigned,
	"open":       StatusUnassigned,
	"new":        StatusUnassigned,
	"accepted":   StatusAccepted,
	"assigned":   StatusAssigned,
	"picked_up":  StatusPickedUp,
	"pickedup":   StatusPickedUp,
	"picked":     StatusPickedUp,
	"in_transit": StatusPickedUp,
	"delivered":  StatusDelivered,
	"declined":   StatusDeclined,
	"cancelled":  StatusDeclined,
	"canceled":   StatusDeclined,
	"rejected":   StatusDeclined,
}

// ParseStatus приводит строку статуса бэкенда к каноническому значению.
// Регистр не учитывается, дефис и пробел считаются подчёркиванием.
func ParseStatus(raw string) OrderStatus {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if st, ok := statusVocabulary[key]; ok {
		return st
	}
	return StatusUnknown
}

// Valid сообщает, является ли статус известным.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusUnassigned, StatusAccepted, StatusAssigned, StatusPickedUp, StatusDelivered, StatusDeclined:
		return true
	}
	return false
}

// Terminal сообщает, является ли статус конечным.
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusDeclined
}

// Next возвращает следующий статус в цепочке и false для конечных и неизвестных статусов.
func (s OrderStatus) Next() (OrderStatus, bool) {
	switch s {
	case StatusUnassigned:
		return StatusAssigned, true
	case StatusAccepted, StatusAssigned:
		return StatusPickedUp, true
	case StatusPickedUp:
		return StatusDelivered, true
	}
	return "", false
}

// Label возвращает подпись статуса для оператора.
func (s OrderStatus) Label() string {
	switch s {
	case StatusUnassigned:
		return "Available"
	case StatusAccepted:
		return "Accepted"
	case StatusAssigned:
		return "Assigned"
	case StatusPickedUp:
		return "Picked Up"
	case StatusDelivered:
		return "Delivered"
	case StatusDeclined:
		return "Declined"
	}
	return "Unknown"
}
