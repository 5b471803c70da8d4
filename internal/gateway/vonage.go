package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

const (
	vonageDefaultEndpoint = "https://messages-sandbox.nexmo.com"
	vonageMessagesPath    = "/v1/messages"
)

// VonageConfig holds the credentials and addressing for the Vonage
// Messages API.
type VonageConfig struct {
	Endpoint  string
	APIKey    string
	APISecret string
	// Sender is the WhatsApp number messages are sent from.
	Sender string
}

// Vonage implements the Gateway interface for the Vonage Messages API,
// sending WhatsApp text messages.
type Vonage struct {
	cfg    VonageConfig
	client HTTPClient
}

// NewVonage creates a Vonage gateway from the given configuration.
func NewVonage(cfg VonageConfig, client HTTPClient) *Vonage {
	if cfg.Endpoint == "" {
		cfg.Endpoint = vonageDefaultEndpoint
	}
	return &Vonage{cfg: cfg, client: client}
}

func (v *Vonage) Name() string { return "vonage" }

// Send delivers a WhatsApp text message via the Vonage Messages API.
// A 202-class response means the gateway accepted the message.
func (v *Vonage) Send(ctx context.Context, identifier, text string) (*Outcome, error) {
	payload := vonagePayload{
		From:        v.cfg.Sender,
		To:          identifier,
		MessageType: "text",
		Text:        text,
		Channel:     "whatsapp",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("vonage: marshal request: %w", err)
	}

	resp, err := v.client.Do(&HTTPRequest{
		Method: "POST",
		URL:    v.cfg.Endpoint + vonageMessagesPath,
		Headers: map[string]string{
			"Authorization": v.basicAuth(),
			"Content-Type":  "application/json",
			"Accept":        "application/json",
		},
		Body: body,
	})
	if err != nil {
		return nil, fmt.Errorf("vonage: send request: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var accepted vonageAccepted
		_ = json.Unmarshal(resp.Body, &accepted)
		return &Outcome{
			ProviderMessageID: accepted.MessageUUID,
			StatusCode:        resp.StatusCode,
			ProviderMessage:   "accepted",
			Timestamp:         time.Now(),
		}, nil
	}

	return nil, ClassifyHTTPError("vonage", resp.StatusCode, string(resp.Body))
}

// HealthCheck verifies API connectivity by probing the messages endpoint.
// Vonage has no dedicated ping; an auth-rejected GET still proves the
// endpoint is reachable, so only transport failures and 5xx are errors.
func (v *Vonage) HealthCheck(ctx context.Context) error {
	resp, err := v.client.Do(&HTTPRequest{
		Method: "GET",
		URL:    v.cfg.Endpoint + vonageMessagesPath,
		Headers: map[string]string{
			"Authorization": v.basicAuth(),
		},
	})
	if err != nil {
		return fmt.Errorf("vonage: health check request: %w", err)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("vonage: health check returned status %d", resp.StatusCode)
	}
	return nil
}

func (v *Vonage) basicAuth() string {
	creds := v.cfg.APIKey + ":" + v.cfg.APISecret
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
}

// vonagePayload matches the Vonage Messages API JSON schema.
type vonagePayload struct {
	From        string `json:"from"`
	To          string `json:"to"`
	MessageType string `json:"message_type"`
	Text        string `json:"text"`
	Channel     string `json:"channel"`
}

// vonageAccepted is the success response body.
type vonageAccepted struct {
	MessageUUID string `json:"message_uuid"`
}
