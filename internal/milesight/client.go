package milesight

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Session a usable API credential pair, produced by the TokenManager.
type Session struct {
	BaseURL     string
	AccessToken string
}

// TokenResponse OAuth2 token endpoint response (client_credentials grant).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// DeviceRecord one device as returned by the vendor device-management API.
// deviceId sometimes arrives as a number, so it is decoded through
// json.Number.
type DeviceRecord struct {
	DeviceID     json.Number `json:"deviceId"`
	SN           string      `json:"sn"`
	DevEUI       string      `json:"devEUI"`
	IMEI         string      `json:"imei"`
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	Tag          string      `json:"tag"`
	Model        string      `json:"model"`
	DeviceStatus string      `json:"deviceStatus"`
}

// ID returns the platform device identity as a string.
func (d *DeviceRecord) ID() string {
	return d.DeviceID.String()
}

// LogEntry one device console/history log record.
type LogEntry struct {
	ID        json.Number     `json:"id"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"ts"`
	Data      json.RawMessage `json:"data"`
}

// envelope generic vendor response wrapper. Some endpoints answer
// {"data": {...}}, some also carry a request_id or error fields.
type envelope struct {
	Data      json.RawMessage `json:"data"`
	ErrCode   string          `json:"error_code"`
	ErrDetail string          `json:"detail_message"`
}

// Client Milesight OpenAPI HTTP client.
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

func NewClient(logger *zap.Logger) *Client {
	client := resty.New().
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		logger:     logger,
	}
}

// RequestToken calls the OAuth2 token endpoint with the
// client_credentials grant. Form-encoded, per the vendor contract.
func (c *Client) RequestToken(ctx context.Context, baseURL, clientID, clientSecret string) (*TokenResponse, error) {
	url := baseURL + "/oauth/token"

	var token TokenResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "client_credentials",
			"client_id":     clientID,
			"client_secret": clientSecret,
		}).
		SetResult(&token).
		Post(url)

	if err != nil {
		c.logger.Error("Milesight token request failed",
			zap.String("url", url),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to call token endpoint: %w", err)
	}
	if resp.IsError() {
		c.logger.Error("Milesight token endpoint returned error",
			zap.String("url", url),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", resp.String()),
		)
		return nil, fmt.Errorf("token endpoint error: status %d", resp.StatusCode())
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned no access_token")
	}
	return &token, nil
}

// SearchDevices lists devices, one page at a time.
func (c *Client) SearchDevices(ctx context.Context, sess *Session, pageNumber, pageSize int) ([]DeviceRecord, error) {
	url := sess.BaseURL + "/device/v1/devices/search"

	body, err := c.post(ctx, sess, url, map[string]any{
		"pageNumber": pageNumber,
		"pageSize":   pageSize,
	})
	if err != nil {
		return nil, err
	}

	var out []DeviceRecord
	if err := decodeList(body, &out); err != nil {
		c.logger.Warn("Unrecognized device search response shape, treating as empty",
			zap.String("url", url),
		)
		return []DeviceRecord{}, nil
	}
	return out, nil
}

// GetDevice fetches a single device detail.
func (c *Client) GetDevice(ctx context.Context, sess *Session, deviceID string) (*DeviceRecord, error) {
	url := sess.BaseURL + "/device/v1/devices/" + deviceID

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(sess.AccessToken).
		Get(url)
	if err != nil {
		c.logger.Error("Milesight API call failed", zap.String("url", url), zap.Error(err))
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	if resp.IsError() {
		c.logger.Error("Milesight API returned error",
			zap.String("url", url),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", resp.String()),
		)
		return nil, fmt.Errorf("get device error: status %d", resp.StatusCode())
	}

	var rec DeviceRecord
	if err := json.Unmarshal(unwrapData(resp.Body()), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal device: %w", err)
	}
	return &rec, nil
}

// UpdateDevice pushes name/description/tag changes back to the platform.
func (c *Client) UpdateDevice(ctx context.Context, sess *Session, deviceID string, payload map[string]any) error {
	url := sess.BaseURL + "/device/v1/devices/" + deviceID

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(sess.AccessToken).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Put(url)
	if err != nil {
		c.logger.Error("Milesight API call failed", zap.String("url", url), zap.Error(err))
		return fmt.Errorf("failed to update device: %w", err)
	}
	if resp.IsError() {
		c.logger.Error("Milesight API returned error",
			zap.String("url", url),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", resp.String()),
		)
		return fmt.Errorf("update device error: status %d", resp.StatusCode())
	}
	return nil
}

// DeleteDevice removes the device from the vendor platform.
func (c *Client) DeleteDevice(ctx context.Context, sess *Session, deviceID string) error {
	url := sess.BaseURL + "/device/v1/devices/" + deviceID

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(sess.AccessToken).
		Delete(url)
	if err != nil {
		c.logger.Error("Milesight API call failed", zap.String("url", url), zap.Error(err))
		return fmt.Errorf("failed to delete device: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("delete device error: status %d", resp.StatusCode())
	}
	return nil
}

// SearchLogs fetches the most recent console/history log entries for one
// hardware identifier. Used by the monitor's backfill.
func (c *Client) SearchLogs(ctx context.Context, sess *Session, snOrEUI string, limit int) ([]LogEntry, error) {
	url := sess.BaseURL + "/device/v1/logs/search"

	body, err := c.post(ctx, sess, url, map[string]any{
		"sn":         snOrEUI,
		"pageNumber": 1,
		"pageSize":   limit,
	})
	if err != nil {
		return nil, err
	}

	var out []LogEntry
	if err := decodeList(body, &out); err != nil {
		c.logger.Warn("Unrecognized log search response shape, treating as empty",
			zap.String("url", url),
		)
		return []LogEntry{}, nil
	}
	return out, nil
}

// TriggerFirmwareUpgrade asks the platform to start an OTA upgrade.
func (c *Client) TriggerFirmwareUpgrade(ctx context.Context, sess *Session, deviceID string) error {
	url := sess.BaseURL + "/device/v1/devices/" + deviceID + "/upgrade"

	_, err := c.post(ctx, sess, url, map[string]any{})
	return err
}

// TestConnection verifies credentials with a minimal search call.
func (c *Client) TestConnection(ctx context.Context, sess *Session) error {
	_, err := c.SearchDevices(ctx, sess, 1, 1)
	return err
}

func (c *Client) post(ctx context.Context, sess *Session, url string, body any) ([]byte, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(sess.AccessToken).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(url)
	if err != nil {
		c.logger.Error("Milesight API call failed", zap.String("url", url), zap.Error(err))
		return nil, fmt.Errorf("failed to call %s: %w", url, err)
	}
	if resp.IsError() {
		c.logger.Error("Milesight API returned error",
			zap.String("url", url),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", resp.String()),
		)
		return nil, fmt.Errorf("milesight API error: status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

// unwrapData strips the {"data": ...} envelope when present.
func unwrapData(body []byte) []byte {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Data) > 0 {
		return env.Data
	}
	return body
}

// decodeList normalizes the three observed list envelopes:
// data.list, data.content, and a bare array.
func decodeList(body []byte, out any) error {
	payload := unwrapData(body)

	var wrapper struct {
		List    json.RawMessage `json:"list"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(payload, &wrapper); err == nil {
		if len(wrapper.List) > 0 {
			return json.Unmarshal(wrapper.List, out)
		}
		if len(wrapper.Content) > 0 {
			return json.Unmarshal(wrapper.Content, out)
		}
	}
	return json.Unmarshal(payload, out)
}
