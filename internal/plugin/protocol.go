package plugin

import "encoding/json"

const (
	MethodDescribe = "Describe"
	MethodInvoke   = "Invoke"
	MethodStop     = "Stop"
)

type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RespError      `json:"error,omitempty"`
}

type RespError struct {
	Message string `json:"message"`
}

type InvokeParams struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
}

type InvokeResult struct {
	Messages []Message `json:"messages"`
}
