// Package api implements storage.RemoteStore over the handsync server REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/iudanet/handsync/internal/client/storage"
	"github.com/iudanet/handsync/internal/crypto"
	"github.com/iudanet/handsync/internal/models"
	"github.com/iudanet/handsync/pkg/api"
)

// DefaultTimeout таймаут HTTP запроса по умолчанию
const DefaultTimeout = 30 * time.Second

// Client представляет HTTP клиент удаленного хранилища
type Client struct {
	httpClient *http.Client
	sealer     *crypto.Sealer
	baseURL    string
	token      string
}

// Option настраивает Client
type Option func(*Client)

// WithToken задает access token устройства (Authorization: Bearer)
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithSealer включает шифрование payload перед отправкой
func WithSealer(s *crypto.Sealer) Option {
	return func(c *Client) { c.sealer = s }
}

// WithTimeout задает таймаут одного запроса
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// NewClient создает новый API клиент
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
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
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	_ storage.RemoteStore     = (*Client)(nil)
	_ storage.DeviceDirectory = (*Client)(nil)
)

// Create отправляет запись создания сущности
func (c *Client) Create(ctx context.Context, rec *models.ChangeRecord) error {
	return c.push(ctx, rec, models.OperationCreate)
}

// Update отправляет запись обновления сущности
func (c *Client) Update(ctx context.Context, rec *models.ChangeRecord) error {
	return c.push(ctx, rec, models.OperationUpdate)
}

// Delete отправляет запись удаления сущности
func (c *Client) Delete(ctx context.Context, rec *models.ChangeRecord) error {
	return c.push(ctx, rec, models.OperationDelete)
}

func (c *Client) push(ctx context.Context, rec *models.ChangeRecord, op models.Operation) error {
	if rec.Operation != op {
		return fmt.Errorf("%w: %s record sent as %s", storage.ErrRejected, rec.Operation, op)
	}

	out := rec.Clone()
	if c.sealer != nil {
		sealed, err := c.sealer.Seal(out.Payload)
		if err != nil {
			return err
		}
		out.Payload = sealed
	}

	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/changes", out, nil); err != nil {
		return fmt.Errorf("push %s request failed: %w", rec.Key(), err)
	}
	return nil
}

// Read возвращает последнюю запись сущности
func (c *Client) Read(ctx context.Context, entityType, entityID string) (*models.ChangeRecord, error) {
	var rec models.ChangeRecord
	path := fmt.Sprintf("/api/v1/entities/%s/%s", url.PathEscape(entityType), url.PathEscape(entityID))
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &rec); err != nil {
		return nil, fmt.Errorf("read request failed: %w", err)
	}

	c.open(&rec)
	return &rec, nil
}

// ChangesSince получает записи, принятые сервером после курсора
func (c *Client) ChangesSince(ctx context.Context, entityType string, since int64) ([]*models.ChangeRecord, int64, error) {
	var resp api.ChangesResponse
	path := fmt.Sprintf("/api/v1/changes/%s?since=%s", url.PathEscape(entityType), strconv.FormatInt(since, 10))
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, 0, fmt.Errorf("changes request failed: %w", err)
	}

	for _, rec := range resp.Changes {
		c.open(rec)
	}
	return resp.Changes, resp.Cursor, nil
}

// Checksum получает дайджест коллекции
func (c *Client) Checksum(ctx context.Context, entityType string) (string, error) {
	var resp api.ChecksumResponse
	path := fmt.Sprintf("/api/v1/checksum/%s", url.PathEscape(entityType))
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", fmt.Errorf("checksum request failed: %w", err)
	}
	return resp.Checksum, nil
}

// PutDevice регистрирует или обновляет устройство в каталоге
func (c *Client) PutDevice(ctx context.Context, d *models.Device) error {
	path := fmt.Sprintf("/api/v1/devices/%s", url.PathEscape(d.ID))
	if err := c.doRequest(ctx, http.MethodPut, path, d, nil); err != nil {
		return fmt.Errorf("put device request failed: %w", err)
	}
	return nil
}

// ListDevices возвращает устройства пользователя
func (c *Client) ListDevices(ctx context.Context) ([]*models.Device, error) {
	var resp api.DevicesResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/devices", nil, &resp); err != nil {
		return nil, fmt.Errorf("list devices request failed: %w", err)
	}
	return resp.Devices, nil
}

// Health проверяет доступность сервера
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/health", nil, &resp); err != nil {
		return nil, fmt.Errorf("health request failed: %w", err)
	}
	return &resp, nil
}

// open расшифровывает payload. При ошибке payload остается зашифрованным,
// и запись будет отвергнута проверкой checksum.
func (c *Client) open(rec *models.ChangeRecord) {
	if c.sealer == nil || rec == nil || !crypto.IsSealed(rec.Payload) {
		return
	}
	if opened, err := c.sealer.Open(rec.Payload); err == nil {
		rec.Payload = opened
	}
}

// doRequest выполняет HTTP запрос и переводит ответ в ошибки storage
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
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrRemoteUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response body: %v", storage.ErrRemoteUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", storage.ErrRemoteUnavailable, err)
		}
	}

	return nil
}

func statusError(status int, body []byte) error {
	message := string(body)
	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		message = errResp.Error
		if errResp.Message != "" {
			message += ": " + errResp.Message
		}
	}

	var kind error
	switch {
	case status == http.StatusUnauthorized:
		kind = storage.ErrUnauthorized
	case status == http.StatusNotFound:
		kind = storage.ErrEntityNotFound
	case status == http.StatusTooManyRequests || status >= 500:
		kind = storage.ErrRemoteUnavailable
	default:
		kind = storage.ErrRejected
	}

	return errors.Join(kind, fmt.Errorf("server error (%d): %s", status, message))
}
