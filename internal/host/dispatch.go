package host

import (
	"context"
	"fmt"

	"github.com/shaiso/stratvisor/internal/broker"
	"github.com/shaiso/stratvisor/internal/domain"
	"github.com/shaiso/stratvisor/internal/protocol"
	"github.com/shaiso/stratvisor/internal/telemetry"
)

// defaultDataTypes — тип данных по умолчанию для типов сообщений с данными.
var defaultDataTypes = map[protocol.MessageType]string{
	protocol.MessageTypeMarketData: broker.DefaultDataType,
	protocol.MessageTypeTickData:   "tick",
	protocol.MessageTypeBarData:    "bar",
}

// HandleMessage применяет входящее сообщение.
//
// Сообщения неизвестных воркеров логируются и пропускаются.
// Ошибка возвращается только для сообщений с некорректным payload.
// В ctx обработчиков передаётся логгер с worker_id и msg_id.
func (h *Host) HandleMessage(ctx context.Context, msg protocol.Message) error {
	h.metrics.InboundMessage(string(msg.Type))
	ctx = telemetry.WithLogger(ctx, telemetry.WithMsgID(telemetry.WithWorkerID(h.logger, msg.WorkerID), msg.MsgID))

	switch msg.Type {
	case protocol.MessageTypeHeartbeat:
		return h.handleHeartbeat(msg)
	case protocol.MessageTypeStatusUpdate:
		return h.handleStatusUpdate(ctx, msg)
	case protocol.MessageTypeError:
		return h.handleError(msg)
	case protocol.MessageTypeMarketData, protocol.MessageTypeTickData, protocol.MessageTypeBarData:
		return h.handleMarketData(ctx, msg)
	case protocol.MessageTypeOrderRequest:
		return h.handleOrderRequest(ctx, msg)
	default:
		h.logger.Debug("ignoring message",
			"msg_type", msg.Type,
			"msg_id", msg.MsgID,
			"worker_id", msg.WorkerID,
		)
		return nil
	}
}

func (h *Host) handleHeartbeat(msg protocol.Message) error {
	if !h.supervisor.UpdateHeartbeat(msg.WorkerID) {
		h.logger.Debug("heartbeat from unknown worker", "worker_id", msg.WorkerID)
	}
	return nil
}

// handleStatusUpdate применяет смену состояния воркера.
//
// INITIALIZING от неизвестного воркера регистрирует его. INITIALIZING от
// известного воркера в любом другом состоянии считается рестартом процесса:
// упавший без отчёта процесс может вернуться, пока host видит его RUNNING.
func (h *Host) handleStatusUpdate(ctx context.Context, msg protocol.Message) error {
	raw, ok := msg.Payload.GetString(protocol.KeyState)
	if !ok {
		return fmt.Errorf("%w: status_update without %s", ErrInvalidPayload, protocol.KeyState)
	}
	state, err := domain.ParseWorkerState(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	status, known := h.supervisor.Worker(msg.WorkerID)
	switch {
	case !known && state == domain.WorkerStateInitializing:
		if err := h.RegisterWorker(ctx, workerSpecFrom(msg)); err != nil {
			return err
		}
	case !known:
		h.logger.Warn("status update from unknown worker",
			"worker_id", msg.WorkerID,
			"state", state,
		)
		return nil
	case state == domain.WorkerStateInitializing && status.State() != domain.WorkerStateInitializing:
		h.restartWorker(status, msg)
	default:
		if !h.supervisor.UpdateState(msg.WorkerID, state) {
			h.logger.Debug("status update rejected",
				"worker_id", msg.WorkerID,
				"from", status.State(),
				"to", state,
			)
			return nil
		}
		if state == domain.WorkerStateStopped {
			h.broker.UnsubscribeAll(msg.WorkerID)
		}
	}

	if pid, ok := msg.Payload.GetNumber(protocol.KeyPID); ok && pid > 0 {
		if status, ok := h.supervisor.Worker(msg.WorkerID); ok {
			status.SetPID(int(pid))
		}
	}
	return nil
}

// restartWorker заменяет статус воркера свежим и фиксирует рестарт.
//
// Поля регистрации из сообщения заменяют сохранённые; отсутствующие
// берутся из прошлой регистрации. Подписка пересобирается целиком.
func (h *Host) restartWorker(old *domain.WorkerStatus, msg protocol.Message) {
	spec := h.restartSpec(old, workerSpecFrom(msg))

	fresh := domain.NewWorkerStatus(spec.WorkerID, spec.StrategyPath, spec.Symbols,
		domain.WithClock(h.now),
		domain.WithLogger(h.logger),
	)
	if !h.supervisor.ReplaceStatus(spec.WorkerID, fresh) {
		return
	}
	h.setSpec(spec)

	h.broker.UnsubscribeAll(spec.WorkerID)
	h.broker.Subscribe(spec.WorkerID, spec.Symbols, spec.DataTypes)

	h.logger.Info("worker process restarted",
		"worker_id", spec.WorkerID,
		"previous_state", old.State(),
		"previous_pid", old.PID(),
	)
	h.supervisor.RecordRestart(spec.WorkerID)
}

// restartSpec дополняет параметры из сообщения прошлой регистрацией.
func (h *Host) restartSpec(old *domain.WorkerStatus, next WorkerSpec) WorkerSpec {
	prev, ok := h.Spec(old.WorkerID)
	if !ok {
		prev = WorkerSpec{WorkerID: old.WorkerID, StrategyPath: old.StrategyPath, Symbols: old.Symbols}
	}
	if next.StrategyPath == "" {
		next.StrategyPath = prev.StrategyPath
	}
	if len(next.Symbols) == 0 {
		next.Symbols = prev.Symbols
	}
	if len(next.DataTypes) == 0 {
		next.DataTypes = prev.DataTypes
	}
	return next
}

func (h *Host) handleError(msg protocol.Message) error {
	errMsg, _ := msg.Payload.GetString(protocol.KeyError)
	if !h.supervisor.RecordError(msg.WorkerID, errMsg) {
		h.logger.Warn("error from unknown worker",
			"worker_id", msg.WorkerID,
			"error", errMsg,
		)
		return nil
	}

	fatal, _ := msg.Payload.GetBool(protocol.KeyFatal)
	if !fatal {
		if details, ok := msg.Payload.GetMap(protocol.KeyDetails); ok {
			fatal, _ = details.GetBool(protocol.KeyFatal)
		}
	}
	if fatal {
		h.supervisor.UpdateState(msg.WorkerID, domain.WorkerStateError)
	}
	return nil
}

// handleMarketData передаёт данные адаптера биржи в Broker.
func (h *Host) handleMarketData(ctx context.Context, msg protocol.Message) error {
	symbol, ok := msg.Payload.GetString(protocol.KeySymbol)
	if !ok || symbol == "" {
		return fmt.Errorf("%w: %s without %s", ErrInvalidPayload, msg.Type, protocol.KeySymbol)
	}

	dataType, ok := msg.Payload.GetString(protocol.KeyDataType)
	if !ok || dataType == "" {
		dataType = defaultDataTypes[msg.Type]
	}

	data, _ := msg.Payload.GetMap(protocol.KeyData)
	source, _ := msg.Payload.GetString(protocol.KeySource)

	h.broker.Publish(ctx, symbol, dataType, data, source)
	return nil
}

func (h *Host) handleOrderRequest(ctx context.Context, msg protocol.Message) error {
	req, err := parseOrderRequest(msg.Payload)
	if err != nil {
		return err
	}

	if h.orders == nil {
		h.logger.Warn("order request ignored, no order handler",
			"worker_id", msg.WorkerID,
			"symbol", req.Symbol,
			"side", req.Side,
		)
		return nil
	}

	if err := h.orders(ctx, msg.WorkerID, req); err != nil {
		return fmt.Errorf("handle order from %s: %w", msg.WorkerID, err)
	}
	return nil
}

// --- Payload ---

func parseOrderRequest(p protocol.Payload) (protocol.OrderRequest, error) {
	symbol, ok := p.GetString(protocol.KeySymbol)
	if !ok || symbol == "" {
		return protocol.OrderRequest{}, fmt.Errorf("%w: order_request without %s", ErrInvalidPayload, protocol.KeySymbol)
	}
	side, _ := p.GetString(protocol.KeySide)
	if side != protocol.SideBuy && side != protocol.SideSell {
		return protocol.OrderRequest{}, fmt.Errorf("%w: order side %q", ErrInvalidPayload, side)
	}
	amount, ok := p.GetNumber(protocol.KeyAmount)
	if !ok || amount <= 0 {
		return protocol.OrderRequest{}, fmt.Errorf("%w: order amount", ErrInvalidPayload)
	}

	orderType, ok := p.GetString(protocol.KeyOrderType)
	if !ok || orderType == "" {
		orderType = protocol.OrderTypeMarket
	}
	price, _ := p.GetNumber(protocol.KeyPrice)

	return protocol.OrderRequest{
		Symbol:    symbol,
		Side:      side,
		OrderType: orderType,
		Amount:    amount,
		Price:     price,
	}, nil
}

// workerSpecFrom собирает WorkerSpec из status_update нового воркера.
func workerSpecFrom(msg protocol.Message) WorkerSpec {
	strategy, _ := msg.Payload.GetString(protocol.KeyStrategyPath)
	return WorkerSpec{
		WorkerID:     msg.WorkerID,
		StrategyPath: strategy,
		Symbols:      stringList(msg.Payload, protocol.KeySymbols),
		DataTypes:    stringList(msg.Payload, protocol.KeyDataTypes),
	}
}

// stringList возвращает строковые элементы списка из payload.
func stringList(p protocol.Payload, key string) []string {
	v, ok := p[key]
	if !ok {
		return nil
	}
	items, ok := v.AsList()
	if !ok {
		return nil
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.AsString(); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
