package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Action 推送消息的类型标签 ("action" 字段)
type Action string

const (
	ActionConnectionStatus Action = "UPDATE_CONNECTION_STATUS" // 本地事件，由通道状态产生
	ActionUpdateAccount    Action = "UPDATE_ACCOUNT"
	ActionUpdateChart      Action = "UPDATE_CHART"
	ActionUpdateSymbols    Action = "UPDATE_SYMBOLS" // data 为仍在跟踪的 ticker 列表
	ActionUnsubscribeChart Action = "UNSUBSCRIBE_CHART"
	ActionUpdateQuote      Action = "UPDATE_QUOTE"
	ActionReplayMode       Action = "REPLAY_MODE"
	ActionHeartbeat        Action = "HEARTBEAT"
)

// ErrMalformedEvent 消息无法解析为事件
var ErrMalformedEvent = errors.New("malformed event")

// Event 是 reducer 的输入，按 Action 只使用对应的负载字段
type Event struct {
	Action     Action
	Status     bool
	Account    *Account
	Symbol     *Symbol
	Tickers    []string
	Ticker     string
	Quote      *Quote
	ReplayMode *ReplayMode
	Timestamp  int64
}

func ConnectionChanged(connected bool) Event {
	return Event{Action: ActionConnectionStatus, Status: connected}
}

func AccountUpdated(acct Account) Event {
	return Event{Action: ActionUpdateAccount, Account: &acct}
}

func ChartUpdated(sym *Symbol) Event {
	return Event{Action: ActionUpdateChart, Symbol: sym}
}

func SymbolsPruned(tickers ...string) Event {
	return Event{Action: ActionUpdateSymbols, Tickers: tickers}
}

func ChartUnsubscribed(ticker string) Event {
	return Event{Action: ActionUnsubscribeChart, Ticker: ticker}
}

func QuoteUpdated(q *Quote) Event {
	return Event{Action: ActionUpdateQuote, Quote: q}
}

// ReplayModeSet mode 为 nil 表示回到实时模式
func ReplayModeSet(mode *ReplayMode) Event {
	return Event{Action: ActionReplayMode, ReplayMode: mode}
}

func Heartbeat(ts int64) Event {
	return Event{Action: ActionHeartbeat, Timestamp: ts}
}

// envelope 通用推送结构，data 延迟解析
type envelope struct {
	Action Action          `json:"action"`
	Data   json.RawMessage `json:"data"`
	Quote  json.RawMessage `json:"quote"` // UPDATE_QUOTE 的旧格式
	Symbol string          `json:"symbol"`
	Status *bool           `json:"status"`
}

// ParseEvent 将一条 JSON 文本解析为 Event
// 未知的 Action 不视为错误，原样交给 reducer
func ParseEvent(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Action == "" {
		return Event{}, fmt.Errorf("%w: missing action", ErrMalformedEvent)
	}

	ev := Event{Action: env.Action}
	var err error
	switch env.Action {
	case ActionConnectionStatus:
		if env.Status != nil {
			ev.Status = *env.Status
		} else {
			err = decodeData(env.Data, &ev.Status)
		}
	case ActionUpdateAccount:
		ev.Account = &Account{}
		err = decodeData(env.Data, ev.Account)
	case ActionUpdateChart:
		ev.Symbol = &Symbol{}
		err = decodeData(env.Data, ev.Symbol)
	case ActionUpdateSymbols:
		err = decodeData(env.Data, &ev.Tickers)
		if err == nil && ev.Tickers == nil {
			ev.Tickers = []string{}
		}
	case ActionUnsubscribeChart:
		ev.Ticker = env.Symbol
		if ev.Ticker == "" && !isNull(env.Data) {
			err = json.Unmarshal(env.Data, &ev.Ticker)
		}
	case ActionUpdateQuote:
		data := env.Data
		if isNull(data) {
			data = env.Quote
		}
		ev.Quote = &Quote{}
		err = decodeData(data, ev.Quote)
	case ActionReplayMode:
		if !isNull(env.Data) {
			ev.ReplayMode = &ReplayMode{}
			err = json.Unmarshal(env.Data, ev.ReplayMode)
		}
	case ActionHeartbeat:
		var hb struct {
			Timestamp int64 `json:"timestamp"`
		}
		if !isNull(env.Data) && json.Unmarshal(env.Data, &hb) == nil {
			ev.Timestamp = hb.Timestamp
		}
	}
	if err != nil {
		return Event{}, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, env.Action, err)
	}
	return ev, nil
}

func decodeData(data json.RawMessage, out any) error {
	if isNull(data) {
		return errors.New("missing data")
	}
	return json.Unmarshal(data, out)
}

func isNull(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
