// client.go — клиент Keycloak Admin REST API для учётных записей участников.
// Токен service account получается через Client Credentials flow и кэшируется
// до истечения (с запасом tokenRefreshMargin). На 401 токен сбрасывается,
// запрос повторяется один раз.
// Операции: GetUser, LookupProfile, DeleteUser, RealmInfo.
package keycloak

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
)

// ErrUserNotFound — учётной записи нет в Keycloak (HTTP 404).
var ErrUserNotFound = errors.New("пользователь не найден в Keycloak")

// tokenRefreshMargin — токен обновляется заранее, чтобы не истечь в полёте.
const tokenRefreshMargin = 30 * time.Second

// maxErrorBody — сколько байт тела ошибки Keycloak попадает в текст ошибки.
const maxErrorBody = 512

var adminRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "im_keycloak_admin_requests_total",
	Help: "Запросы к Keycloak Admin API по операциям и статусам ответа",
}, []string{"operation", "status"})

// tokenCache — access token service account.
type tokenCache struct {
	mu        sync.Mutex
	value     string
	expiresAt time.Time
}

func (t *tokenCache) validAt(now time.Time) bool {
	return t.value != "" && now.Add(tokenRefreshMargin).Before(t.expiresAt)
}

// Client — клиент Keycloak Admin REST API одного realm.
type Client struct {
	realm    string
	adminURL string
	tokenURL string
	creds    url.Values

	httpClient *http.Client
	tokens     tokenCache
	logger     *slog.Logger
}

// New создаёт клиент Keycloak.
// baseURL — URL Keycloak без пути realm (https://keycloak.school.lan).
// clientID, clientSecret — service account с правом manage-users.
// httpClient может нести TLS конфигурацию; nil — клиент с таймаутом 30s.
func New(baseURL, realm, clientID, clientSecret string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	base := strings.TrimRight(baseURL, "/")
	escapedRealm := url.PathEscape(realm)

	return &Client{
		realm:    realm,
		adminURL: base + "/admin/realms/" + escapedRealm,
		tokenURL: base + "/realms/" + escapedRealm + "/protocol/openid-connect/token",
		creds: url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {clientID},
			"client_secret": {clientSecret},
		},
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "keycloak_client")),
	}
}

// token возвращает действующий access token.
// Блокировка держится на время запроса токена: параллельные вызовы ждут один запрос.
func (c *Client) token(ctx context.Context) (string, error) {
	c.tokens.mu.Lock()
	defer c.tokens.mu.Unlock()

	if c.tokens.validAt(time.Now()) {
		return c.tokens.value, nil
	}

	tr, err := c.fetchToken(ctx)
	if err != nil {
		return "", err
	}
	c.tokens.value = tr.AccessToken
	c.tokens.expiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)

	c.logger.Debug("Токен service account обновлён",
		slog.Time("expires_at", c.tokens.expiresAt),
	)
	return c.tokens.value, nil
}

// dropToken сбрасывает кэш, если в нём всё ещё отклонённый токен.
func (c *Client) dropToken(rejected string) {
	c.tokens.mu.Lock()
	defer c.tokens.mu.Unlock()
	if c.tokens.value == rejected {
		c.tokens.value = ""
	}
}

func (c *Client) fetchToken(ctx context.Context) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(c.creds.Encode()))
	if err != nil {
		return nil, fmt.Errorf("создание запроса токена: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос токена Keycloak: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("token", resp)
	}

	var tr TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("декодирование токена Keycloak: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, errors.New("Keycloak вернул пустой access_token")
	}
	return &tr, nil
}

// call выполняет запрос к Admin API realm. path начинается с "/" или пуст.
// Вызывающий закрывает тело ответа.
func (c *Client) call(ctx context.Context, operation, method, path string) (*http.Response, error) {
	resp, err := c.send(ctx, method, path)
	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		// Токен отозван или realm перезапущен раньше срока жизни токена.
		resp.Body.Close()
		resp, err = c.send(ctx, method, path)
	}

	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	adminRequestsTotal.WithLabelValues(operation, status).Inc()

	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, path string) (*http.Response, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение токена: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.adminURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.dropToken(token)
	}
	return resp, nil
}

// statusError формирует ошибку из неожиданного ответа Keycloak.
func statusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("%s: Keycloak вернул статус %d: %s",
		operation, resp.StatusCode, strings.TrimSpace(string(body)))
}

// GetUser возвращает учётную запись по ID (sub токена).
func (c *Client) GetUser(ctx context.Context, id string) (*UserRepresentation, error) {
	resp, err := c.call(ctx, "get_user", http.MethodGet, "/users/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrUserNotFound
	default:
		return nil, statusError("get_user", resp)
	}

	var user UserRepresentation
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("get_user: декодирование ответа: %w", err)
	}
	return &user, nil
}

// LookupProfile возвращает профильные данные пользователя из Keycloak.
// Фото в Keycloak не хранится, PhotoURL остаётся пустым.
func (c *Client) LookupProfile(ctx context.Context, uid string) (model.Profile, error) {
	user, err := c.GetUser(ctx, uid)
	if err != nil {
		return model.Profile{}, err
	}
	return model.Profile{
		UID:         uid,
		DisplayName: user.DisplayName(),
		Email:       user.Email,
	}, nil
}

// DeleteUser удаляет учётную запись.
// ErrUserNotFound — учётной записи уже нет.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	resp, err := c.call(ctx, "delete_user", http.MethodDelete, "/users/"+url.PathEscape(id))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
	case http.StatusNotFound:
		return ErrUserNotFound
	default:
		return statusError("delete_user", resp)
	}

	c.logger.Info("Учётная запись удалена в Keycloak", slog.String("user_id", id))
	return nil
}

// RealmInfo возвращает состояние realm.
func (c *Client) RealmInfo(ctx context.Context) (*RealmRepresentation, error) {
	resp, err := c.call(ctx, "realm_info", http.MethodGet, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("realm_info", resp)
	}

	var realm RealmRepresentation
	if err := json.NewDecoder(resp.Body).Decode(&realm); err != nil {
		return nil, fmt.Errorf("realm_info: декодирование ответа: %w", err)
	}
	return &realm, nil
}

// CheckReady проверяет, что Admin API отвечает и realm включён.
// Реализует handlers.ReadinessChecker.
func (c *Client) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	realm, err := c.RealmInfo(ctx)
	if err != nil {
		return "fail", fmt.Sprintf("Keycloak Admin API недоступен: %v", err)
	}
	if !realm.Enabled {
		return "degraded", fmt.Sprintf("realm %s отключён", c.realm)
	}
	return "ok", fmt.Sprintf("realm %s доступен", c.realm)
}
