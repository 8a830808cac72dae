package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/iudanet/medsync/internal/models"
	"github.com/iudanet/medsync/pkg/api"
)

// DefaultTimeout - ограничение на один запрос к серверу
const DefaultTimeout = 30 * time.Second

//go:generate moq -out remote_mock.go . Remote

// Remote - удаленная система учета (system of record).
// Возвращаемые записи помечены как синхронизированные.
type Remote interface {
	List(ctx context.Context, table models.Table, q Query) ([]*models.Record, error)
	Get(ctx context.Context, table models.Table, id string) (*models.Record, error)
	Insert(ctx context.Context, rec *models.Record) (*models.Record, error)
	// Update применяет изменение, если сервер не хранит версию новее baseUpdatedAt
	Update(ctx context.Context, rec *models.Record, baseUpdatedAt int64) (*models.Record, error)
	// Delete идемпотентен: удаление отсутствующей записи не ошибка
	Delete(ctx context.Context, table models.Table, id string) error
}

// Query фильтрует List
type Query struct {
	ScopeID  string
	ParentID string
	Since    int64 // только записи с updated_at > Since
	Limit    int
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	mu         sync.RWMutex
}

// NewClient создает новый API клиент. timeout <= 0 означает DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			// Настройка обработки редиректов
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Ограничиваем количество редиректов
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
}

// SetToken задает access token для последующих запросов
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) getToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Register регистрирует нового пользователя
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (*api.RegisterResponse, error) {
	var resp api.RegisterResponse
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/register", req, &resp)
	if err != nil {
		return nil, fmt.Errorf("register request failed: %w", err)
	}
	return &resp, nil
}

// Login выполняет аутентификацию пользователя
func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/login", req, &resp)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return &resp, nil
}

// Health проверяет доступность сервера
func (c *Client) Health(ctx context.Context) error {
	var resp api.HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/health", nil, &resp); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// List возвращает записи таблицы по фильтру
func (c *Client) List(ctx context.Context, table models.Table, q Query) ([]*models.Record, error) {
	params := url.Values{}
	if q.ScopeID != "" {
		params.Set("scope", q.ScopeID)
	}
	if q.ParentID != "" {
		params.Set("parent", q.ParentID)
	}
	if q.Since > 0 {
		params.Set("since", strconv.FormatInt(q.Since, 10))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	path := "/api/v1/records/" + url.PathEscape(table.String())
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp api.ListResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("list %s failed: %w", table, err)
	}

	records := make([]*models.Record, 0, len(resp.Records))
	for i := range resp.Records {
		rec, err := FromDTO(&resp.Records[i])
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Get возвращает одну запись
func (c *Client) Get(ctx context.Context, table models.Table, id string) (*models.Record, error) {
	var resp api.Record
	if err := c.doRequest(ctx, http.MethodGet, recordPath(table, id), nil, &resp); err != nil {
		return nil, fmt.Errorf("get %s/%s failed: %w", table, id, err)
	}
	return FromDTO(&resp)
}

// Insert создает запись; 409 означает, что id уже занят
func (c *Client) Insert(ctx context.Context, rec *models.Record) (*models.Record, error) {
	req := api.WriteRequest{Record: ToDTO(rec)}

	var resp api.Record
	path := "/api/v1/records/" + url.PathEscape(rec.Table.String())
	if err := c.doRequest(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, fmt.Errorf("insert %s/%s failed: %w", rec.Table, rec.ID, err)
	}
	return FromDTO(&resp)
}

// Update изменяет запись, если серверная версия не новее baseUpdatedAt
func (c *Client) Update(ctx context.Context, rec *models.Record, baseUpdatedAt int64) (*models.Record, error) {
	req := api.WriteRequest{Record: ToDTO(rec), BaseUpdatedAt: baseUpdatedAt}

	var resp api.Record
	if err := c.doRequest(ctx, http.MethodPut, recordPath(rec.Table, rec.ID), req, &resp); err != nil {
		return nil, fmt.Errorf("update %s/%s failed: %w", rec.Table, rec.ID, err)
	}
	return FromDTO(&resp)
}

// Delete удаляет запись
func (c *Client) Delete(ctx context.Context, table models.Table, id string) error {
	err := c.doRequest(ctx, http.MethodDelete, recordPath(table, id), nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete %s/%s failed: %w", table, id, err)
	}
	return nil
}

func recordPath(table models.Table, id string) string {
	return "/api/v1/records/" + url.PathEscape(table.String()) + "/" + url.PathEscape(id)
}

// doRequest выполняет HTTP запрос
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.getToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(ctx, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransportError(ctx, err)
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err != nil {
			errResp.Message = string(respBody)
		}
		remoteErr := NewRemoteError(resp.StatusCode, errResp.Message)
		if resp.StatusCode == http.StatusConflict && errResp.Error == api.CodeAlreadyExists {
			remoteErr.Kind = ErrAlreadyExists
		}
		return remoteErr
	}

	// Декодируем успешный ответ
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// classifyTransportError сводит ошибки транспорта к ErrTimeout и ErrUnavailable.
// Отмена контекста вызывающим кодом возвращается как есть.
func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
