// Package json 统一项目内的 JSON 编解码入口，底层使用 bytedance/sonic。
package json

import (
	stdjson "encoding/json"

	"github.com/bytedance/sonic"
)

var api = sonic.ConfigStd

// RawMessage 与 encoding/json.RawMessage 语义一致，用于延迟解析的原始 JSON 片段。
type RawMessage = stdjson.RawMessage

func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

func MarshalToString(v any) (string, error) {
	return api.MarshalToString(v)
}

func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

func UnmarshalFromString(data string, v any) error {
	return api.UnmarshalFromString(data, v)
}

// Valid 判断 data 是否为合法的 JSON 文本。
func Valid(data []byte) bool {
	return api.Valid(data)
}
