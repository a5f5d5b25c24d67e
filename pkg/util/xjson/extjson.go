package xjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	// ErrMarshal 序列化失败。
	ErrMarshal = errors.New("xjson: marshal failed")

	// ErrParse 输入不是合法的 Extended JSON 文档。
	ErrParse = errors.New("xjson: parse failed")
)

// ParseDocument 将 Extended JSON 文本解析为 bson.M。空白输入返回 nil。
func ParseDocument(s string) (bson.M, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var doc bson.M
	if err := bson.UnmarshalExtJSON([]byte(s), false, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return doc, nil
}

// ParseOrdered 将 Extended JSON 文本解析为 bson.D，保留键的书写顺序。空白输入返回 nil。
func ParseOrdered(s string) (bson.D, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON([]byte(s), false, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return doc, nil
}

// PrettyE 将 v 序列化为缩进的 relaxed Extended JSON。
func PrettyE(v any) (string, error) {
	data, err := bson.MarshalExtJSONIndent(v, false, false, "", "  ")
	if err == nil {
		return string(data), nil
	}
	data, jerr := json.MarshalIndent(v, "", "  ")
	if jerr != nil {
		return "", fmt.Errorf("%w: %w", ErrMarshal, errors.Join(err, jerr))
	}
	return string(data), nil
}

// Pretty 同 PrettyE，失败时返回 "<marshal error: ...>"，用于日志和调试输出。
func Pretty(v any) string {
	s, err := PrettyE(v)
	if err != nil {
		return fmt.Sprintf("<marshal error: %v>", err)
	}
	return s
}
