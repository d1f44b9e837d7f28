package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/flate"

	"options-dashboard-sync/internal/model"
)

// ErrDecode 单条消息无法解码 (解压失败、JSON 错误)，连接不受影响
var ErrDecode = errors.New("decode frame")

// DecodeFrame 文本帧直接解析为 JSON，二进制帧先做 raw deflate 解压
// 两条路径产出相同结构的事件
func DecodeFrame(messageType int, payload []byte) (model.Event, error) {
	switch messageType {
	case websocket.TextMessage:
		return parse(payload)
	case websocket.BinaryMessage:
		text, err := inflate(payload)
		if err != nil {
			return model.Event{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return parse(text)
	}
	return model.Event{}, fmt.Errorf("%w: unsupported message type %d", ErrDecode, messageType)
}

// EncodeFrame 服务端写法：短消息走文本帧，超过阈值时压缩为二进制帧
func EncodeFrame(payload []byte, compressAbove int) (int, []byte, error) {
	if compressAbove < 0 || len(payload) < compressAbove {
		return websocket.TextMessage, payload, nil
	}
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return 0, nil, err
	}
	if _, err := w.Write(payload); err != nil {
		return 0, nil, err
	}
	if err := w.Close(); err != nil {
		return 0, nil, err
	}
	return websocket.BinaryMessage, buf.Bytes(), nil
}

func inflate(payload []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(payload))
	defer r.Close()
	return io.ReadAll(r)
}

func parse(text []byte) (model.Event, error) {
	ev, err := model.ParseEvent(text)
	if err != nil {
		return model.Event{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return ev, nil
}
