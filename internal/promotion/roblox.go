// Package promotion changes an applicant's group role through the Roblox
// Open Cloud API, using the form creator's API key from Vault.
package promotion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"astapp/internal/config"
)

// ErrAPIKeyNotFound means the creator never stored a Roblox key
var ErrAPIKeyNotFound = errors.New("creator API key not found in Vault")

// Request names the membership to move and the role to move it to. Role is
// a role path ("groups/7/roles/99") or a bare role id.
type Request struct {
	CreatorID    string
	GroupID      int64
	MembershipID int64
	Role         string
}

// Promoter performs role changes
type Promoter interface {
	Promote(ctx context.Context, req Request) (map[string]any, error)
}

// APIError is a non-2xx reply from Roblox
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Roblox API returned HTTP %d: %s", e.StatusCode, e.Body)
}

// RobloxClient implements Promoter
type RobloxClient struct {
	baseURL    string
	keyPrefix  string
	secrets    SecretStore
	httpClient *http.Client
	logger     *zap.Logger
}

func NewRobloxClient(cfg config.PromotionConfig, keyPrefix string, secrets SecretStore, logger *zap.Logger) *RobloxClient {
	return &RobloxClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		keyPrefix:  keyPrefix,
		secrets:    secrets,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("roblox"),
	}
}

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)

// KeyPath is where a creator's API key lives in the secret store
func KeyPath(prefix, creatorID string) string {
	return prefix + unsafeKeyChars.ReplaceAllString(creatorID, "_")
}

// RolePath expands a bare numeric role id into groups/{g}/roles/{r}
func RolePath(groupID int64, role string) string {
	role = strings.TrimSpace(role)
	if id, err := strconv.ParseInt(role, 10, 64); err == nil {
		return fmt.Sprintf("groups/%d/roles/%d", groupID, id)
	}
	return role
}

// SaveAPIKey stores a creator's Roblox API key
func (c *RobloxClient) SaveAPIKey(ctx context.Context, creatorID, apiKey string) error {
	return c.secrets.PutSecret(ctx, KeyPath(c.keyPrefix, creatorID), map[string]any{"api_key": apiKey})
}

func (c *RobloxClient) apiKey(ctx context.Context, creatorID string) (string, error) {
	secret, err := c.secrets.GetSecret(ctx, KeyPath(c.keyPrefix, creatorID))
	if errors.Is(err, ErrSecretNotFound) {
		return "", ErrAPIKeyNotFound
	}
	if err != nil {
		return "", err
	}
	key, _ := secret["api_key"].(string)
	if key == "" {
		return "", ErrAPIKeyNotFound
	}
	return key, nil
}

// Promote PATCHes the membership's role and returns the decoded reply
func (c *RobloxClient) Promote(ctx context.Context, req Request) (map[string]any, error) {
	key, err := c.apiKey(ctx, req.CreatorID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]string{"role": RolePath(req.GroupID, req.Role)})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/cloud/v2/groups/%d/memberships/%d", c.baseURL, req.GroupID, req.MembershipID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("x-api-key", key)
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Info("promoting membership",
		zap.Int64("group_id", req.GroupID),
		zap.Int64("membership_id", req.MembershipID),
	)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("Roblox API error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil || decoded == nil {
		return map[string]any{"raw": string(body)}, nil
	}
	return decoded, nil
}
