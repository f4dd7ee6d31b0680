package worker

import (
	"context"
	"fmt"

	"github.com/shaiso/stratvisor/internal/domain"
	"github.com/shaiso/stratvisor/internal/protocol"
)

// HandleMessage применяет входящее сообщение: команду или данные.
func (w *Worker) HandleMessage(ctx context.Context, msg protocol.Message) error {
	if msg.WorkerID != "" && msg.WorkerID != w.id {
		w.logger.Debug("message for another worker", "msg_worker_id", msg.WorkerID, "msg_type", msg.Type)
		return nil
	}

	w.opMu.Lock()
	defer w.opMu.Unlock()

	switch msg.Type {
	case protocol.MessageTypeStart:
		w.begin(ctx)
	case protocol.MessageTypeStop:
		w.halt(ctx)
	case protocol.MessageTypePause:
		w.transition(ctx, domain.WorkerStatePaused)
	case protocol.MessageTypeResume:
		w.transition(ctx, domain.WorkerStateRunning)
	case protocol.MessageTypeMarketData, protocol.MessageTypeTickData, protocol.MessageTypeBarData:
		w.handleData(ctx, msg)
	default:
		w.logger.Debug("ignoring message", "msg_type", msg.Type, "msg_id", msg.MsgID)
	}
	return nil
}

// handleData передаёт данные стратегии. Вне RUNNING данные пропускаются.
func (w *Worker) handleData(ctx context.Context, msg protocol.Message) {
	if w.status.State() != domain.WorkerStateRunning {
		w.skipped.Add(1)
		return
	}

	md := MarketData{Time: msg.Time()}
	md.Symbol, _ = msg.Payload.GetString(protocol.KeySymbol)
	md.DataType, _ = msg.Payload.GetString(protocol.KeyDataType)
	md.Source, _ = msg.Payload.GetString(protocol.KeySource)
	md.Data, _ = msg.Payload.GetMap(protocol.KeyData)

	panicked, err := w.callStrategy(ctx, md)
	switch {
	case panicked:
		w.failed.Add(1)
		w.fail(ctx, err)
	case err != nil:
		w.failed.Add(1)
		w.logger.Warn("strategy error",
			"symbol", md.Symbol,
			"data_type", md.DataType,
			"error", err,
		)
		w.status.RecordError(err.Error())
		w.publish(ctx, protocol.NewError(w.id, err.Error(), protocol.Payload{
			protocol.KeySymbol:   protocol.String(md.Symbol),
			protocol.KeyDataType: protocol.String(md.DataType),
		}))
	default:
		w.processed.Add(1)
	}
}

// callStrategy вызывает OnData и перехватывает панику стратегии.
func (w *Worker) callStrategy(ctx context.Context, md MarketData) (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrStrategyPanic, r)
			panicked = true
		}
	}()
	return false, w.strategy.OnData(ctx, md)
}
