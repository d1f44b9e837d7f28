package model

import "fmt"

// Trend 趋势/形态方向
type Trend string

const (
	TrendNone    Trend = "None"
	TrendBullish Trend = "Bullish"
	TrendBearish Trend = "Bearish"
)

func (t Trend) String() string {
	return string(t)
}

// Direction 止损/止盈组合的方向
type Direction string

const (
	DirLong  Direction = "long"  // CALL: 止损在下，止盈在上
	DirShort Direction = "short" // PUT: 止损在上，止盈在下
)

func (d Direction) String() string {
	return string(d)
}

// ParseDirection 兼容期权类型写法
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "long", "LONG", "CALL", "call":
		return DirLong, nil
	case "short", "SHORT", "PUT", "put":
		return DirShort, nil
	}
	return "", fmt.Errorf("unknown direction: %s", s)
}
