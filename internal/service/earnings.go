package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/courier-agent/internal/model"
)

// ErrNoEarnings возвращается, если за текущий месяц нет записи о начислениях.
var ErrNoEarnings = errors.New("no earnings for the current month")

// EarningsSource описывает получение начислений с бэкенда.
type EarningsSource interface {
	Earnings(ctx context.Context, month string, year int) ([]model.Earnings, error)
}

// Earnings отдаёт начисления курьера.
type Earnings struct {
	source EarningsSource
	logger *zap.Logger
	now    func() time.Time
}

// NewEarnings создаёт сервис начислений.
func NewEarnings(source EarningsSource, logger *zap.Logger) *Earnings {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Earnings{source: source, logger: logger, now: time.Now}
}

// List возвращает начисления, опционально за указанный месяц и год.
func (e *Earnings) List(ctx context.Context, month string, year int) ([]model.Earnings, error) {
	list, err := e.source.Earnings(ctx, month, year)
	if err != nil {
		e.logger.Error("fetch earnings error", zap.String("month", month), zap.Int("year", year), zap.Error(err))
		return nil, fmt.Errorf("list earnings: %w", err)
	}
	return list, nil
}

// CurrentMonth возвращает запись о начислениях за текущий месяц.
func (e *Earnings) CurrentMonth(ctx context.Context) (model.Earnings, error) {
	now := e.now()
	month := now.Month().String()

	list, err := e.List(ctx, month, now.Year())
	if err != nil {
		return model.Earnings{}, err
	}

	for _, rec := range list {
		if strings.EqualFold(rec.Month, month) && (rec.Year == 0 || rec.Year == now.Year()) {
			return rec, nil
		}
	}
	return model.Earnings{}, ErrNoEarnings
}
