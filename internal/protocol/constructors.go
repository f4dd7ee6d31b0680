package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

// Ключи payload типовых сообщений.
const (
	KeySymbol    = "symbol"
	KeyDataType  = "data_type"
	KeyData      = "data"
	KeySource    = "source"
	KeyError     = "error"
	KeyDetails   = "details"
	KeySide      = "side"
	KeyAmount    = "amount"
	KeyPrice     = "price"
	KeyOrderType = "order_type"
	KeyState     = "state"
	KeyPID       = "pid"
	KeyFatal     = "fatal"

	// Поля регистрации воркера в status_update INITIALIZING.
	KeyStrategyPath = "strategy_path"
	KeySymbols      = "symbols"
	KeyDataTypes    = "data_types"
)

// Стороны и типы ордеров.
const (
	SideBuy  = "buy"
	SideSell = "sell"

	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"
)

// NewHeartbeat создаёт heartbeat от воркера.
// stats — произвольная телеметрия воркера, может быть nil.
func NewHeartbeat(workerID string, stats Payload) Message {
	payload := Payload{}
	for k, v := range stats {
		payload[k] = v
	}
	return withID(New(MessageTypeHeartbeat, workerID, payload))
}

// NewMarketData создаёт сообщение с рыночными данными.
//
// Payload: {"symbol", "data_type", "data", "source"}. WorkerID не заполняется:
// адресата выбирает брокер.
func NewMarketData(symbol, dataType string, data Payload, source string) Message {
	return withID(New(MessageTypeMarketData, "", Payload{
		KeySymbol:   String(symbol),
		KeyDataType: String(dataType),
		KeyData:     Map(data),
		KeySource:   String(source),
	}))
}

// NewControl создаёт команду управления воркером (start/stop/pause/resume).
func NewControl(msgType MessageType, workerID string, params Payload) (Message, error) {
	if !msgType.IsControl() {
		return Message{}, fmt.Errorf("%w: %q", ErrNotControlType, msgType)
	}
	payload := Payload{}
	for k, v := range params {
		payload[k] = v
	}
	return withID(New(msgType, workerID, payload)), nil
}

// NewError создаёт сообщение об ошибке воркера.
func NewError(workerID, errMsg string, details Payload) Message {
	return withID(New(MessageTypeError, workerID, Payload{
		KeyError:   String(errMsg),
		KeyDetails: Map(details),
	}))
}

// OrderRequest — параметры заявки.
type OrderRequest struct {
	Symbol    string
	Side      string // buy / sell
	OrderType string // market / limit
	Amount    float64
	Price     float64 // 0 для market
}

// NewOrderRequest создаёт заявку на ордер от воркера.
func NewOrderRequest(workerID string, req OrderRequest) Message {
	orderType := req.OrderType
	if orderType == "" {
		orderType = OrderTypeMarket
	}

	payload := Payload{
		KeySymbol:    String(req.Symbol),
		KeySide:      String(req.Side),
		KeyOrderType: String(orderType),
		KeyAmount:    Number(req.Amount),
		KeyPrice:     Null(),
	}
	if req.Price > 0 {
		payload[KeyPrice] = Number(req.Price)
	}
	return withID(New(MessageTypeOrderRequest, workerID, payload))
}

// withID присваивает сообщению новый MsgID.
func withID(m Message) Message {
	m.MsgID = uuid.New().String()
	return m
}

// NewStatusUpdate создаёт сообщение о смене состояния воркера.
// pid <= 0 не передаётся.
func NewStatusUpdate(workerID, state string, pid int) Message {
	payload := Payload{KeyState: String(state)}
	if pid > 0 {
		payload[KeyPID] = Int(int64(pid))
	}
	return withID(New(MessageTypeStatusUpdate, workerID, payload))
}

// NewRegistration создаёт status_update INITIALIZING с параметрами стратегии.
// По нему host регистрирует новый воркер.
func NewRegistration(workerID, strategyPath string, symbols, dataTypes []string, pid int) Message {
	m := NewStatusUpdate(workerID, "INITIALIZING", pid)
	m.Payload[KeyStrategyPath] = String(strategyPath)
	m.Payload[KeySymbols] = stringsValue(symbols)
	if len(dataTypes) > 0 {
		m.Payload[KeyDataTypes] = stringsValue(dataTypes)
	}
	return m
}

func stringsValue(items []string) Value {
	out := make([]Value, len(items))
	for i, s := range items {
		out[i] = String(s)
	}
	return List(out...)
}
