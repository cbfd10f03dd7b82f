package middleware

import "net/http"

// NewMaxBytesMiddleware はリクエストボディのサイズ上限を適用するミドルウェアを返す。
// 上限を超えた読み取りはhttp.MaxBytesReaderがエラーにする。
// multipartのパース前に適用することで、巨大なアップロードを早期に遮断する。
func NewMaxBytesMiddleware(limitBytes int64) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limitBytes)
			next.ServeHTTP(w, r)
		})
	}
}
