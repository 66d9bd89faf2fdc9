// Package service реализует жизненный цикл заказов курьера: загрузку списков из двух
// источников, принятие заказов и смену статусов с оптимистичным применением и
// последующей сверкой с бэкендом.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/courier-agent/internal/backend"
	"github.com/mmeshcher/courier-agent/internal/metrics"
	"github.com/mmeshcher/courier-agent/internal/model"
	"github.com/mmeshcher/courier-agent/internal/normalize"
)

var (
	// ErrCourierRequired возвращается, если для принятия заказа не удалось определить курьера.
	ErrCourierRequired = errors.New("courier identity required, please re-authenticate")
	// ErrTerminalStatus возвращается при попытке сменить статус доставленного или отклонённого заказа.
	ErrTerminalStatus = errors.New("order is already in a terminal status")
	// ErrInvalidStatus возвращается для неизвестного целевого статуса.
	ErrInvalidStatus = errors.New("unknown order status")
	// ErrInvalidSource возвращается, если источник заказа не указан и не известен локально.
	ErrInvalidSource = errors.New("unknown order source")
	// ErrOrderNotFound возвращается, если заказа нет ни в одном локальном списке.
	ErrOrderNotFound = errors.New("order not found")
	// ErrLocationUnknown возвращается, если координаты курьера ещё не известны.
	ErrLocationUnknown = errors.New("courier location is unknown")
)

const (
	scopeOpen = "open"
	scopeMine = "mine"
)

// Backend описывает обращения к бэкенду, используемые менеджером заказов.
type Backend interface {
	OpenOrders(ctx context.Context, source model.Source) ([]map[string]any, error)
	MyOrders(ctx context.Context, source model.Source, courierID string) ([]map[string]any, error)
	AcceptOrder(ctx context.Context, source model.Source, orderID, courierID string) (map[string]any, error)
	UpdateOrderStatus(ctx context.Context, source model.Source, orderID string, update backend.StatusUpdate) (map[string]any, error)
}

// CourierSource отдаёт текущего курьера сессии.
type CourierSource interface {
	Courier() (model.Courier, bool)
	IsAuthenticated() bool
}

// RefreshMode определяет, какой признак загрузки выставляется на время обновления.
type RefreshMode int

const (
	// RefreshInitial выставляет признак первичной загрузки.
	RefreshInitial RefreshMode = iota
	// RefreshPull выставляет признак обновления по запросу пользователя.
	RefreshPull
	// RefreshBackground не выставляет признаков.
	RefreshBackground
)

// ScheduleFunc выполняет fn через delay и возвращает функцию отмены.
type ScheduleFunc func(delay time.Duration, fn func()) (stop func())

// Snapshot описывает состояние менеджера на момент публикации.
type Snapshot struct {
	Open       []model.Order `json:"openOrders"`
	Mine       []model.Order `json:"myOrders"`
	Active     *model.Order  `json:"activeOrder,omitempty"`
	Loading    bool          `json:"loading"`
	Refreshing bool          `json:"refreshing"`
}

// OrderManager владеет списками открытых заказов, заказов курьера и текущего заказа.
// Все изменения проходят через его методы.
type OrderManager struct {
	backend Backend
	courier CourierSource
	logger  *zap.Logger
	metrics *metrics.Metrics

	now            func() time.Time
	schedule       ScheduleFunc
	reconcileDelay time.Duration
	sampleFallback bool

	mu          sync.RWMutex
	open        []model.Order
	mine        []model.Order
	active      *model.Order
	loading     int
	refreshing  int
	subscribers map[int]chan Snapshot
	nextSubID   int
	timers      map[int]func()
	nextTimerID int
	closed      bool
}

// Option настраивает OrderManager.
type Option func(*OrderManager)

// WithClock задаёт источник времени для клиентских отметок.
func WithClock(now func() time.Time) Option {
	return func(m *OrderManager) { m.now = now }
}

// WithReconcileDelay задаёт задержку перед сверкой после смены статуса.
func WithReconcileDelay(d time.Duration) Option {
	return func(m *OrderManager) { m.reconcileDelay = d }
}

// WithScheduler подменяет планировщик отложенной сверки.
func WithScheduler(s ScheduleFunc) Option {
	return func(m *OrderManager) { m.schedule = s }
}

// WithSampleFallback включает или выключает подстановку демонстрационных заказов.
func WithSampleFallback(enabled bool) Option {
	return func(m *OrderManager) { m.sampleFallback = enabled }
}

// WithMetrics подключает метрики.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *OrderManager) { m.metrics = mt }
}

// NewOrderManager создаёт менеджер заказов.
func NewOrderManager(b Backend, courier CourierSource, logger *zap.Logger, opts ...Option) *OrderManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &OrderManager{
		backend:        b,
		courier:        courier,
		logger:         logger,
		now:            time.Now,
		schedule:       afterFunc,
		reconcileDelay: time.Second,
		sampleFallback: true,
		open:           []model.Order{},
		mine:           []model.Order{},
		subscribers:    make(map[int]chan Snapshot),
		timers:         make(map[int]func()),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func afterFunc(delay time.Duration, fn func()) func() {
	t := time.AfterFunc(delay, fn)
	return func() { t.Stop() }
}

// Close отменяет запланированные сверки.
func (m *OrderManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for id, stop := range m.timers {
		stop()
		delete(m.timers, id)
	}
}

type fetchFunc func(ctx context.Context, source model.Source) ([]map[string]any, error)

type sourceResult struct {
	orders []model.Order
	err    error
}

// fetchBoth опрашивает оба источника параллельно и дожидается завершения обоих.
func (m *OrderManager) fetchBoth(ctx context.Context, scope string, fetch fetchFunc) (stockist, direct sourceResult) {
	var g errgroup.Group

	run := func(source model.Source, res *sourceResult) {
		g.Go(func() error {
			raws, err := fetch(ctx, source)
			if err != nil {
				res.err = err
				m.metrics.SourceFailed(scope, string(source))
				m.logger.Warn("order source fetch failed",
					zap.String("scope", scope),
					zap.String("source", string(source)),
					zap.Error(err),
				)
				return nil
			}
			res.orders = normalize.Orders(raws, source, m.logger)
			return nil
		})
	}

	run(model.SourceStockist, &stockist)
	run(model.SourceDirect, &direct)
	_ = g.Wait()
	return stockist, direct
}

// RefreshOpenOrders загружает открытые заказы обоих источников. Заказы оптовиков идут первыми.
// Если недоступны оба источника, список заменяется демонстрационными заказами.
func (m *OrderManager) RefreshOpenOrders(ctx context.Context, mode RefreshMode) []model.Order {
	m.beginRefresh(mode)
	defer m.endRefresh(mode)

	stockist, direct := m.fetchBoth(ctx, scopeOpen, m.backend.OpenOrders)

	var list []model.Order
	if stockist.err != nil && direct.err != nil {
		if !m.sampleFallback {
			m.logger.Warn("both open order sources failed, keeping current list")
			return m.OpenOrders()
		}
		m.logger.Warn("both open order sources failed, using sample orders")
		m.metrics.SampleFallback()
		list = SampleOrders()
	} else {
		list = make([]model.Order, 0, len(stockist.orders)+len(direct.orders))
		list = append(list, stockist.orders...)
		list = append(list, direct.orders...)
	}

	m.reconcileOpen(list)
	return cloneOrders(list)
}

// RefreshMyOrders загружает заказы курьера из обоих источников.
// Если недоступны оба источника, список становится пустым.
func (m *OrderManager) RefreshMyOrders(ctx context.Context, mode RefreshMode) []model.Order {
	m.beginRefresh(mode)
	defer m.endRefresh(mode)

	courierID := ""
	if c, ok := m.courier.Courier(); ok {
		courierID = c.ID
	}

	stockist, direct := m.fetchBoth(ctx, scopeMine, func(ctx context.Context, source model.Source) ([]map[string]any, error) {
		return m.backend.MyOrders(ctx, source, courierID)
	})

	list := make([]model.Order, 0, len(stockist.orders)+len(direct.orders))
	list = append(list, stockist.orders...)
	list = append(list, direct.orders...)

	m.reconcileMine(list)
	return cloneOrders(list)
}

// AcceptOrder назначает заказ на курьера. Явно переданный курьер имеет приоритет над курьером сессии.
func (m *OrderManager) AcceptOrder(ctx context.Context, orderID string, override *model.Courier, source model.Source) error {
	courier, ok := m.resolveCourier(override)
	if !ok {
		return ErrCourierRequired
	}
	source, err := m.resolveSource(orderID, source)
	if err != nil {
		return err
	}

	resp, err := m.backend.AcceptOrder(ctx, source, orderID, courier.ID)
	m.metrics.OrderAction("accept", err)
	if err != nil {
		m.logger.Error("accept order error",
			zap.String("order_id", orderID),
			zap.String("source", string(source)),
			zap.Error(err),
		)
		return fmt.Errorf("accept order %s: %w", orderID, err)
	}

	patch := model.AcceptPatch(courier.Ref(), m.now())

	m.mu.Lock()
	patchList(m.open, orderID, patch)
	if m.active != nil && m.active.ID == orderID {
		o := patch.Apply(*m.active)
		m.active = &o
	}
	if source == model.SourceDirect && indexOf(m.mine, orderID) < 0 {
		m.mine = append(m.mine, m.synthesizeLocked(orderID, resp, patch))
	}
	m.publishLocked()
	m.mu.Unlock()

	m.logger.Info("order accepted",
		zap.String("order_id", orderID),
		zap.String("source", string(source)),
		zap.String("courier_id", courier.ID),
	)

	if source == model.SourceStockist {
		m.RefreshMyOrders(ctx, RefreshBackground)
	}
	return nil
}

// synthesizeLocked строит запись для списка курьера из ответа на принятие
// или из локальной копии открытого заказа.
func (m *OrderManager) synthesizeLocked(orderID string, resp map[string]any, patch model.Patch) model.Order {
	if id, ok := normalize.ID(resp); ok && id == orderID {
		return patch.Apply(normalize.Order(resp, model.SourceDirect))
	}
	if i := indexOf(m.open, orderID); i >= 0 {
		return m.open[i]
	}
	return patch.Apply(model.Order{ID: orderID, Source: model.SourceDirect, Items: []model.Item{}})
}

// UpdateOrderStatus отправляет новый статус заказа и после подтверждения применяет его
// локально с клиентскими отметками времени, затем планирует сверку с бэкендом.
// Переходы не проверяются, кроме выхода из конечного статуса.
func (m *OrderManager) UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus, source model.Source) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	source, err := m.resolveSource(orderID, source)
	if err != nil {
		return err
	}
	if current, ok := m.terminalStatus(orderID); ok {
		return fmt.Errorf("update order %s: %w (%s)", orderID, ErrTerminalStatus, current)
	}

	patch := model.StatusPatch(status, m.now())
	update := backend.StatusUpdate{
		Status:      status,
		PickedUpAt:  patch.PickedUpAt,
		DeliveredAt: patch.DeliveredAt,
	}

	_, err = m.backend.UpdateOrderStatus(ctx, source, orderID, update)
	m.metrics.OrderAction("status", err)
	if err != nil {
		m.logger.Error("update order status error",
			zap.String("order_id", orderID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return fmt.Errorf("update order %s to %s: %w", orderID, status, err)
	}

	m.applyOptimistic(orderID, patch)
	m.logger.Info("order status updated",
		zap.String("order_id", orderID),
		zap.String("status", string(status)),
	)

	m.scheduleReconcile(context.WithoutCancel(ctx))
	return nil
}

// applyOptimistic применяет изменение к каждому месту хранения заказа независимо.
// Отсутствие заказа в одном из мест не считается ошибкой.
func (m *OrderManager) applyOptimistic(orderID string, patch model.Patch) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	found := patchList(m.open, orderID, patch)
	if patchList(m.mine, orderID, patch) {
		found = true
	}
	if m.active != nil && m.active.ID == orderID {
		o := patch.Apply(*m.active)
		m.active = &o
		found = true
	}
	m.publishLocked()
	return found
}

// reconcileOpen целиком заменяет открытые заказы данными бэкенда.
func (m *OrderManager) reconcileOpen(list []model.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.open = cloneOrders(list)
	m.refreshActiveLocked(m.open)
	m.publishLocked()
}

// reconcileMine целиком заменяет заказы курьера данными бэкенда.
func (m *OrderManager) reconcileMine(list []model.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.mine = cloneOrders(list)
	m.refreshActiveLocked(m.mine)
	m.publishLocked()
}

func (m *OrderManager) refreshActiveLocked(list []model.Order) {
	if m.active == nil {
		return
	}
	if i := indexOf(list, m.active.ID); i >= 0 {
		o := list[i]
		m.active = &o
	}
}

func (m *OrderManager) scheduleReconcile(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.scheduleLocked(func() { m.RefreshMyOrders(ctx, RefreshBackground) })
	m.scheduleLocked(func() { m.RefreshOpenOrders(ctx, RefreshBackground) })
}

func (m *OrderManager) scheduleLocked(fn func()) {
	id := m.nextTimerID
	m.nextTimerID++

	m.timers[id] = m.schedule(m.reconcileDelay, func() {
		m.mu.Lock()
		_, pending := m.timers[id]
		delete(m.timers, id)
		m.mu.Unlock()
		if pending {
			fn()
		}
	})
}

// StartAutoRefresh запускает фоновое обновление обоих списков, пока жив ctx.
func (m *OrderManager) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !m.courier.IsAuthenticated() {
					continue
				}
				m.RefreshOpenOrders(ctx, RefreshBackground)
				m.RefreshMyOrders(ctx, RefreshBackground)
			}
		}
	}()
}

// OpenOrders возвращает копию списка открытых заказов.
func (m *OrderManager) OpenOrders() []model.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneOrders(m.open)
}

// MyOrders возвращает копию списка заказов курьера.
func (m *OrderManager) MyOrders() []model.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneOrders(m.mine)
}

// ActiveOrder возвращает текущий просматриваемый заказ.
func (m *OrderManager) ActiveOrder() (model.Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return model.Order{}, false
	}
	return *m.active, true
}

// Find ищет заказ в текущем, затем в списке курьера, затем в открытых заказах.
func (m *OrderManager) Find(orderID string) (model.Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findLocked(orderID)
}

func (m *OrderManager) findLocked(orderID string) (model.Order, bool) {
	if m.active != nil && m.active.ID == orderID {
		return *m.active, true
	}
	if i := indexOf(m.mine, orderID); i >= 0 {
		return m.mine[i], true
	}
	if i := indexOf(m.open, orderID); i >= 0 {
		return m.open[i], true
	}
	return model.Order{}, false
}

// SetActiveOrder делает заказ из локальных списков текущим.
func (m *OrderManager) SetActiveOrder(orderID string) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.findLocked(orderID)
	if !ok {
		return model.Order{}, ErrOrderNotFound
	}
	m.active = &o
	m.publishLocked()
	return o, nil
}

// ClearActiveOrder сбрасывает текущий заказ.
func (m *OrderManager) ClearActiveOrder() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = nil
	m.publishLocked()
}

// Loading сообщает, идёт ли первичная загрузка.
func (m *OrderManager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading > 0
}

// Refreshing сообщает, идёт ли обновление по запросу пользователя.
func (m *OrderManager) Refreshing() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refreshing > 0
}

// Snapshot возвращает текущее состояние.
func (m *OrderManager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Subscribe возвращает канал снимков состояния и функцию отписки.
// Медленный получатель видит только последний снимок.
func (m *OrderManager) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = ch
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(ch)
		}
	}
}

func (m *OrderManager) snapshotLocked() Snapshot {
	s := Snapshot{
		Open:       cloneOrders(m.open),
		Mine:       cloneOrders(m.mine),
		Loading:    m.loading > 0,
		Refreshing: m.refreshing > 0,
	}
	if m.active != nil {
		o := *m.active
		s.Active = &o
	}
	return s
}

func (m *OrderManager) publishLocked() {
	if len(m.subscribers) == 0 {
		return
	}
	snap := m.snapshotLocked()
	for _, ch := range m.subscribers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (m *OrderManager) beginRefresh(mode RefreshMode) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch mode {
	case RefreshInitial:
		m.loading++
	case RefreshPull:
		m.refreshing++
	default:
		return
	}
	m.publishLocked()
}

func (m *OrderManager) endRefresh(mode RefreshMode) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch mode {
	case RefreshInitial:
		m.loading--
	case RefreshPull:
		m.refreshing--
	default:
		return
	}
	m.publishLocked()
}

func (m *OrderManager) resolveCourier(override *model.Courier) (model.Courier, bool) {
	if override != nil && override.ID != "" {
		return *override, true
	}
	c, ok := m.courier.Courier()
	if !ok || c.ID == "" {
		return model.Courier{}, false
	}
	return c, true
}

// resolveSource берёт источник из локальной копии заказа, если он не указан явно.
func (m *OrderManager) resolveSource(orderID string, source model.Source) (model.Source, error) {
	if source.Valid() {
		return source, nil
	}
	if o, ok := m.Find(orderID); ok && o.Source.Valid() {
		return o.Source, nil
	}
	return "", ErrInvalidSource
}

func (m *OrderManager) terminalStatus(orderID string) (model.OrderStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.active != nil && m.active.ID == orderID && m.active.Status.Terminal() {
		return m.active.Status, true
	}
	for _, list := range [][]model.Order{m.mine, m.open} {
		if i := indexOf(list, orderID); i >= 0 && list[i].Status.Terminal() {
			return list[i].Status, true
		}
	}
	return "", false
}

func patchList(list []model.Order, orderID string, patch model.Patch) bool {
	found := false
	for i := range list {
		if list[i].ID == orderID {
			list[i] = patch.Apply(list[i])
			found = true
		}
	}
	return found
}

func indexOf(list []model.Order, orderID string) int {
	for i := range list {
		if list[i].ID == orderID {
			return i
		}
	}
	return -1
}

func cloneOrders(list []model.Order) []model.Order {
	out := make([]model.Order, len(list))
	copy(out, list)
	return out
}
