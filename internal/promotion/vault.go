package promotion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"astapp/internal/config"
)

// ErrSecretNotFound is returned when a path holds no data
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore reads and writes key/value secrets
type SecretStore interface {
	GetSecret(ctx context.Context, path string) (map[string]any, error)
	PutSecret(ctx context.Context, path string, data map[string]any) error
}

// VaultClient talks to a Vault KV v2 engine over HTTP
type VaultClient struct {
	addr       string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewVaultClient(cfg config.VaultConfig, logger *zap.Logger) *VaultClient {
	logger = logger.Named("vault")
	if cfg.Token == "" {
		logger.Warn("vault token not set")
	}
	return &VaultClient{
		addr:       strings.TrimRight(cfg.Addr, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

func (c *VaultClient) url(path string) string {
	return c.addr + "/v1/" + strings.TrimLeft(path, "/")
}

// GetSecret returns data.data at path
func (c *VaultClient) GetSecret(ctx context.Context, path string) (map[string]any, error) {
	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrSecretNotFound
	}
	if status >= 400 {
		return nil, fmt.Errorf("vault get failed: HTTP %d", status)
	}

	var decoded struct {
		Data struct {
			Data map[string]any `json:"data"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to parse vault response: %w", err)
	}
	if len(decoded.Data.Data) == 0 {
		return nil, ErrSecretNotFound
	}
	return decoded.Data.Data, nil
}

// PutSecret writes data as a new version at path
func (c *VaultClient) PutSecret(ctx context.Context, path string, data map[string]any) error {
	payload, err := json.Marshal(map[string]any{"data": data})
	if err != nil {
		return err
	}
	status, _, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("vault store failed: HTTP %d", status)
	}
	return nil
}

func (c *VaultClient) do(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Vault-Token", c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("vault request failed", zap.String("method", method), zap.Error(err))
		return 0, nil, fmt.Errorf("vault request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}
