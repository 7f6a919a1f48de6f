package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
	"github.com/bigkaa/goschool/institution-module/internal/service"
)

// mockUserResolver запоминает профиль, с которым был вызван.
type mockUserResolver struct {
	got model.Profile
	err error
}

func (m *mockUserResolver) EnsureUser(_ context.Context, p model.Profile) (*model.User, error) {
	m.got = p
	if m.err != nil {
		return nil, m.err
	}
	return &model.User{UID: p.UID, DisplayName: p.DisplayName, Email: p.Email}, nil
}

func TestCurrentUser(t *testing.T) {
	resolver := &mockUserResolver{}
	handler := CurrentUser(resolver, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := UserFromContext(r.Context())
		if u == nil {
			t.Fatal("пользователь не найден в контексте")
		}
		if u.UID != "user-123" {
			t.Errorf("ожидался uid user-123, получен %s", u.UID)
		}
		w.WriteHeader(http.StatusOK)
	}))

	claims := &AuthClaims{Subject: "user-123", PreferredUsername: "ivanov", Email: "ivanov@school.lan", Picture: "p.png"}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil)
	req = req.WithContext(context.WithValue(req.Context(), ContextKeyClaims, claims))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d", rec.Code)
	}
	want := model.Profile{UID: "user-123", DisplayName: "ivanov", Email: "ivanov@school.lan", PhotoURL: "p.png"}
	if resolver.got != want {
		t.Errorf("неожиданный профиль: %+v", resolver.got)
	}
}

func TestCurrentUser_NoClaims(t *testing.T) {
	handler := CurrentUser(&mockUserResolver{}, testLogger())(rejectingHandler(t))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
}

func TestCurrentUser_ResolverError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ошибка валидации", fmt.Errorf("%w: пустой идентификатор", service.ErrValidation), http.StatusBadRequest},
		{"хранилище недоступно", errors.New("нет соединения"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := CurrentUser(&mockUserResolver{err: tt.err}, testLogger())(rejectingHandler(t))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil)
			req = req.WithContext(context.WithValue(req.Context(), ContextKeyClaims, &AuthClaims{Subject: "u1"}))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("ожидался статус %d, получен %d", tt.want, rec.Code)
			}
		})
	}
}

func TestUserFromContext_Empty(t *testing.T) {
	if u := UserFromContext(context.Background()); u != nil {
		t.Errorf("ожидался nil, получено %+v", u)
	}
}
