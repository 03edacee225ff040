package httpapi

// Response /api/v1 的响应外壳。
// 成功为 {"ok":true,"data":...}；失败为 {"ok":false,"error":"..."}，错误类别看 HTTP 状态码。
type Response[T any] struct {
	OK    bool   `json:"ok"`
	Data  T      `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Ok 成功响应
func Ok[T any](data T) Response[T] {
	return Response[T]{OK: true, Data: data}
}

// Fail 失败响应，不带 data
func Fail(message string) Response[any] {
	return Response[any]{Error: message}
}
