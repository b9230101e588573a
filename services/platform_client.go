package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// PlatformClient implements Platform over the gateway's HTTP API. The
// gateway talks to the community platform; this service only ever sees the
// gateway, authenticated with a dedicated service token.
type PlatformClient struct {
	BaseURL string
	Token   string
	Log     *zap.SugaredLogger
	Client  *http.Client
}

func NewPlatformClient(baseURL, token string, log *zap.SugaredLogger) *PlatformClient {
	return &PlatformClient{
		BaseURL: baseURL,
		Token:   token,
		Log:     log,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *PlatformClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("platform gateway request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusForbidden:
		return ErrPermissionDenied
	default:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.Log.Warnf("Platform gateway returned %d for %s %s: %s", resp.StatusCode, method, path, payload)
		return fmt.Errorf("platform gateway returned %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *PlatformClient) Member(ctx context.Context, communityID, userID string) (*Member, error) {
	var member Member
	path := fmt.Sprintf("/communities/%s/members/%s", url.PathEscape(communityID), url.PathEscape(userID))
	if err := c.do(ctx, http.MethodGet, path, nil, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func (c *PlatformClient) Roles(ctx context.Context, communityID string) ([]Role, error) {
	var out struct {
		Roles []Role `json:"roles"`
	}
	path := fmt.Sprintf("/communities/%s/roles", url.PathEscape(communityID))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Roles, nil
}

func (c *PlatformClient) CommunityName(ctx context.Context, communityID string) (string, error) {
	var out struct {
		Name string `json:"name"`
	}
	path := fmt.Sprintf("/communities/%s", url.PathEscape(communityID))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out.Name, nil
}

func (c *PlatformClient) CreateRole(ctx context.Context, communityID, name string, color int) (*Role, error) {
	var role Role
	path := fmt.Sprintf("/communities/%s/roles", url.PathEscape(communityID))
	body := map[string]any{"name": name, "color": color}
	if err := c.do(ctx, http.MethodPost, path, body, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

func (c *PlatformClient) AddRole(ctx context.Context, communityID, userID, roleID string) error {
	path := fmt.Sprintf("/communities/%s/members/%s/roles/%s",
		url.PathEscape(communityID), url.PathEscape(userID), url.PathEscape(roleID))
	return c.do(ctx, http.MethodPut, path, nil, nil)
}

func (c *PlatformClient) RemoveRole(ctx context.Context, communityID, userID, roleID string) error {
	path := fmt.Sprintf("/communities/%s/members/%s/roles/%s",
		url.PathEscape(communityID), url.PathEscape(userID), url.PathEscape(roleID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *PlatformClient) PostMessage(ctx context.Context, communityID, channelID, content string) (string, error) {
	var out struct {
		MessageID string `json:"message_id"`
	}
	path := fmt.Sprintf("/communities/%s/channels/%s/messages",
		url.PathEscape(communityID), url.PathEscape(channelID))
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"content": content}, &out); err != nil {
		return "", err
	}
	return out.MessageID, nil
}

func (c *PlatformClient) Announce(ctx context.Context, communityID, content string) error {
	path := fmt.Sprintf("/communities/%s/announce", url.PathEscape(communityID))
	return c.do(ctx, http.MethodPost, path, map[string]string{"content": content}, nil)
}
