// Package verification реализует подтверждение смены статуса заказа курьером:
// код от получателя для доставки прямого заказа или простое да/нет для остальных переходов.
package verification

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/mmeshcher/courier-agent/internal/model"
	"github.com/mmeshcher/courier-agent/internal/validation"
)

var (
	// ErrPromptClosed возвращается при обращении к закрытому запросу подтверждения.
	ErrPromptClosed = errors.New("verification prompt is closed")
	// ErrWrongPromptKind возвращается, если действие не соответствует виду запроса.
	ErrWrongPromptKind = errors.New("action does not match the prompt kind")
)

// StatusUpdater отправляет новый статус заказа.
type StatusUpdater interface {
	UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus, source model.Source) error
}

// Kind определяет вид запроса подтверждения.
type Kind string

const (
	// KindCode требует код, который курьер получает у получателя.
	KindCode Kind = "code"
	// KindConfirm требует только подтверждения да/нет.
	KindConfirm Kind = "confirm"
)

// Gate открывает запросы подтверждения перед сменой статуса.
type Gate struct {
	updater StatusUpdater
	logger  *zap.Logger
}

// NewGate создаёт шлюз подтверждения.
func NewGate(updater StatusUpdater, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{updater: updater, logger: logger}
}

// RequiresCode сообщает, нужен ли код для перехода заказа в target.
func RequiresCode(order model.Order, target model.OrderStatus) bool {
	return order.Source == model.SourceDirect && target == model.StatusDelivered
}

// Begin открывает запрос подтверждения перехода заказа в target.
func (g *Gate) Begin(order model.Order, target model.OrderStatus) *Prompt {
	p := &Prompt{
		gate:   g,
		order:  order,
		target: target,
		kind:   KindConfirm,
		open:   true,
	}
	if RequiresCode(order, target) {
		p.kind = KindCode
		p.masked = validation.MaskDisplayID(order.DisplayID())
	}
	return p
}

// Prompt описывает открытый запрос подтверждения. Число попыток ввода кода не ограничено.
type Prompt struct {
	gate   *Gate
	order  model.Order
	target model.OrderStatus
	kind   Kind
	masked string

	mu      sync.Mutex
	input   string
	message string
	open    bool
}

// Kind возвращает вид запроса.
func (p *Prompt) Kind() Kind { return p.kind }

// Order возвращает заказ, к которому относится запрос.
func (p *Prompt) Order() model.Order { return p.order }

// Target возвращает целевой статус.
func (p *Prompt) Target() model.OrderStatus { return p.target }

// Masked возвращает идентификатор заказа со скрытым кодом.
func (p *Prompt) Masked() string { return p.masked }

// Input возвращает сохранённый ввод. После неверного кода он пуст.
func (p *Prompt) Input() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input
}

// Message возвращает сообщение для курьера о последней неудаче.
func (p *Prompt) Message() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.message
}

// Open сообщает, открыт ли запрос.
func (p *Prompt) Open() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// Submit проверяет код и при совпадении отправляет статус доставки.
// Неверный код очищает ввод и оставляет запрос открытым без обращения к бэкенду.
func (p *Prompt) Submit(ctx context.Context, input string) error {
	if p.kind != KindCode {
		return ErrWrongPromptKind
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return ErrPromptClosed
	}

	if err := validation.CheckDeliveryCode(p.order.DisplayID(), input); err != nil {
		p.input = ""
		p.message = err.Error()
		p.gate.logger.Info("delivery code rejected", zap.String("order_id", p.order.ID))
		return err
	}

	p.input = input
	return p.forwardLocked(ctx)
}

// Confirm отправляет статус для запроса вида да/нет.
func (p *Prompt) Confirm(ctx context.Context) error {
	if p.kind != KindConfirm {
		return ErrWrongPromptKind
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return ErrPromptClosed
	}
	return p.forwardLocked(ctx)
}

// Cancel закрывает запрос без смены статуса.
func (p *Prompt) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = false
}

func (p *Prompt) forwardLocked(ctx context.Context) error {
	if err := p.gate.updater.UpdateOrderStatus(ctx, p.order.ID, p.target, p.order.Source); err != nil {
		p.message = err.Error()
		p.gate.logger.Warn("status update after confirmation failed",
			zap.String("order_id", p.order.ID),
			zap.String("status", string(p.target)),
			zap.Error(err),
		)
		return err
	}

	p.open = false
	p.message = ""
	return nil
}
