package push

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ErrBadDeviceToken reports that APNs rejected the device token as invalid.
// The caller should clear the stored token so future sessions do not retry it.
var ErrBadDeviceToken = errors.New("apns rejected device token")

// Rejection reasons that mean the token must be cleared.
var invalidTokenReasons = map[string]bool{
	"BadDeviceToken":         true,
	"Unregistered":           true,
	"DeviceTokenNotForTopic": true,
}

// providerTokenTTL is how long a signed provider token is reused. Apple
// accepts tokens between 20 and 60 minutes old.
const providerTokenTTL = 40 * time.Minute

// Notification is one alert push.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// Config holds APNs provider credentials. PrivateKey is the base64-encoded
// contents of the .p8 signing key.
type Config struct {
	TeamID     string
	KeyID      string
	PrivateKey string
	BundleID   string
	Host       string
}

// Client sends alert pushes through the APNs provider API, authenticated
// with an ES256 provider token.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
	key        *ecdsa.PrivateKey

	mu          sync.Mutex
	token       string
	tokenIssued time.Time
}

// NewClient parses the signing key and returns an APNs client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pem, err := base64.StdEncoding.DecodeString(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decode p8 key: %w", err)
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parse p8 key: %w", err)
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		key:        key,
	}, nil
}

// providerToken returns a signed provider token, reusing the cached one
// while it is fresh.
func (c *Client) providerToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Since(c.tokenIssued) < providerTokenTTL {
		return c.token, nil
	}
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": c.cfg.TeamID,
		"iat": now.Unix(),
	})
	tok.Header["kid"] = c.cfg.KeyID
	signed, err := tok.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign provider token: %w", err)
	}
	c.token = signed
	c.tokenIssued = now
	return signed, nil
}

type apnsPayload struct {
	APS    apsBody           `json:"aps"`
	Custom map[string]string `json:"data,omitempty"`
}

type apsBody struct {
	Alert apsAlert `json:"alert"`
	Sound string   `json:"sound"`
	Badge int      `json:"badge"`
}

type apsAlert struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type apnsError struct {
	Reason string `json:"reason"`
}

// Send delivers one alert push to a device token. Returns ErrBadDeviceToken
// when APNs reports the token as no longer valid.
func (c *Client) Send(ctx context.Context, deviceToken string, n Notification) error {
	providerToken, err := c.providerToken()
	if err != nil {
		return err
	}

	body, err := json.Marshal(apnsPayload{
		APS: apsBody{
			Alert: apsAlert{Title: n.Title, Body: n.Body},
			Sound: "default",
			Badge: 1,
		},
		Custom: n.Data,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/3/device/%s", c.cfg.Host, deviceToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+providerToken)
	req.Header.Set("apns-topic", c.cfg.BundleID)
	req.Header.Set("apns-push-type", "alert")
	req.Header.Set("apns-priority", "10")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("apns request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var apnsErr apnsError
	_ = json.NewDecoder(resp.Body).Decode(&apnsErr)
	if invalidTokenReasons[apnsErr.Reason] {
		return fmt.Errorf("%w: %s", ErrBadDeviceToken, apnsErr.Reason)
	}
	return fmt.Errorf("apns status %d: %s", resp.StatusCode, apnsErr.Reason)
}
