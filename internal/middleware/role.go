package middleware

import (
	"net/http"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// RequireRole は指定されたロールのいずれかを持つ主体のみ通過させるミドルウェアを返す。
// セッションミドルウェアの後に配置すること。未認証は401、ロール不一致は403を返す。
func RequireRole(roles ...model.Role) func(next http.Handler) http.Handler {
	allowed := make(map[model.Role]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := PrincipalFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if !allowed[principal.Role] {
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
