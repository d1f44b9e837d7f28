package state

import (
	"errors"
	"fmt"
	"maps"

	"go.uber.org/multierr"

	"options-dashboard-sync/internal/model"
)

var (
	// ErrUnknownAction 未识别的事件类型，reducer 原样返回
	ErrUnknownAction = errors.New("unknown action")
	// ErrInvalidEvent 事件无法安全应用，已被丢弃
	ErrInvalidEvent = errors.New("invalid event")
)

// Reduce 纯函数：(snapshot, event) -> snapshot'
//
// 返回的 Snapshot 总是可用的；error 只是诊断信息，此时返回值与输入是同一个引用。
// 未被修改的子树 (其他 Symbol、未触及的 map) 保持引用不变。
func Reduce(s *model.Snapshot, ev model.Event) (*model.Snapshot, error) {
	if s == nil {
		s = model.DefaultSnapshot()
	}

	switch ev.Action {
	case model.ActionConnectionStatus:
		next := *s
		next.Connected = ev.Status
		return &next, nil

	case model.ActionUpdateAccount:
		if ev.Account == nil {
			return s, invalid(ev.Action, "missing account")
		}
		next := *s
		next.Account = *ev.Account
		return &next, nil

	case model.ActionUpdateChart:
		if err := validateSymbol(ev.Symbol); err != nil {
			return s, invalid(ev.Action, err.Error())
		}
		next := *s
		next.Symbols = withEntry(s.Symbols, ev.Symbol.Symbol, ev.Symbol)
		return &next, nil

	case model.ActionUpdateSymbols:
		if ev.Tickers == nil {
			return s, invalid(ev.Action, "missing ticker set")
		}
		keep := make(map[string]struct{}, len(ev.Tickers))
		for _, t := range ev.Tickers {
			keep[t] = struct{}{}
		}
		next := *s
		next.Symbols = retain(s.Symbols, keep)
		return &next, nil

	case model.ActionUnsubscribeChart:
		if ev.Ticker == "" {
			return s, invalid(ev.Action, "missing ticker")
		}
		next := *s
		next.Symbols = without(s.Symbols, ev.Ticker)
		return &next, nil

	case model.ActionUpdateQuote:
		if ev.Quote == nil || ev.Quote.Symbol == "" {
			return s, invalid(ev.Action, "missing quote symbol")
		}
		next := *s
		next.Quotes = withEntry(s.Quotes, ev.Quote.Symbol, ev.Quote)
		return &next, nil

	case model.ActionReplayMode:
		next := *s
		next.ReplayMode = ev.ReplayMode
		return &next, nil

	case model.ActionHeartbeat:
		return s, nil
	}

	return s, fmt.Errorf("%w: %q", ErrUnknownAction, ev.Action)
}

// ReduceAll 按顺序折叠一批事件，结果与逐条 Reduce 相同
func ReduceAll(s *model.Snapshot, events ...model.Event) (*model.Snapshot, error) {
	var errs error
	for _, ev := range events {
		var err error
		s, err = Reduce(s, ev)
		errs = multierr.Append(errs, err)
	}
	return s, errs
}

func invalid(action model.Action, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidEvent, action, reason)
}

// validateSymbol 拒绝不完整的记录和时间不严格递增的序列
func validateSymbol(sym *model.Symbol) error {
	if sym == nil {
		return errors.New("missing symbol")
	}
	if sym.Symbol == "" {
		return errors.New("empty ticker")
	}
	for _, chart := range sym.Charts {
		for i := 1; i < len(chart.Prices); i++ {
			if chart.Prices[i].Time <= chart.Prices[i-1].Time {
				return fmt.Errorf("%s timeframe %d: price time not increasing at index %d",
					sym.Symbol, chart.Timeframe, i)
			}
		}
	}
	return nil
}

// withEntry 浅拷贝后覆盖一个键
func withEntry[V any](m map[string]*V, key string, value *V) map[string]*V {
	next := make(map[string]*V, len(m)+1)
	maps.Copy(next, m)
	next[key] = value
	return next
}

// without 键不存在时返回原 map
func without[V any](m map[string]*V, key string) map[string]*V {
	if _, ok := m[key]; !ok {
		return m
	}
	next := maps.Clone(m)
	delete(next, key)
	return next
}

// retain 只保留 keep 中的键；没有删除任何键时返回原 map
func retain[V any](m map[string]*V, keep map[string]struct{}) map[string]*V {
	removed := false
	for k := range m {
		if _, ok := keep[k]; !ok {
			removed = true
			break
		}
	}
	if !removed {
		return m
	}
	next := make(map[string]*V, len(keep))
	for k, v := range m {
		if _, ok := keep[k]; ok {
			next[k] = v
		}
	}
	return next
}
