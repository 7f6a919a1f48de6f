// user.go — middleware загрузки пользователя платформы по claims токена.
// При первом входе запись пользователя создаётся из профиля Keycloak.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/goschool/institution-module/internal/api/errors"
	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
)

const contextKeyUser contextKey = "current_user"

// UserResolver возвращает пользователя, создавая его при первом входе.
// Реализуется service.ProfileService.
type UserResolver interface {
	EnsureUser(ctx context.Context, p model.Profile) (*model.User, error)
}

// CurrentUser возвращает middleware, помещающий текущего пользователя в контекст.
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func CurrentUser(users UserResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "current_user"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
				return
			}

			user, err := users.EnsureUser(r.Context(), model.Profile{
				UID:         claims.Subject,
				DisplayName: claims.DisplayName(),
				Email:       claims.Email,
				PhotoURL:    claims.Picture,
			})
			if err != nil {
				apierrors.WriteServiceError(w, err, logger)
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyUser, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext извлекает текущего пользователя из контекста запроса.
// Возвращает nil, если пользователь не загружен.
func UserFromContext(ctx context.Context) *model.User {
	u, _ := ctx.Value(contextKeyUser).(*model.User)
	return u
}

// WithUser помещает пользователя в контекст. Используется в тестах обработчиков.
func WithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, contextKeyUser, u)
}
