package twiliosms

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"dispatch-server/internal/gateway"
	"dispatch-server/internal/observability"
	"dispatch-server/internal/store"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Client sends campaign messages over SMS through Twilio. Account credentials
// are service-wide; gateway instance rows with the twilio provider only mark
// the channel as available.
type Client struct {
	client     *twilio.RestClient
	fromNumber string
	logger     *observability.Logger
}

// NewClient creates a Twilio SMS client
func NewClient(accountSID, authToken, fromNumber string, logger *observability.Logger) *Client {
	restClient := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Client{
		client:     restClient,
		fromNumber: fromNumber,
		logger:     logger,
	}
}

// Send delivers one SMS to the recipient.
func (c *Client) Send(ctx context.Context, instance store.GatewayInstance, recipient, text string) error {
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(recipient)
	params.SetFrom(c.fromNumber)
	params.SetBody(text)

	_, err := c.client.Api.CreateMessage(params)
	if err != nil {
		var restErr *twilioclient.TwilioRestError
		if errors.As(err, &restErr) && restErr.Status == http.StatusTooManyRequests {
			return &gateway.RateLimitError{Provider: store.ProviderTwilio, Err: err}
		}
		return fmt.Errorf("twilio send failed: %w", err)
	}
	return nil
}

// SendPresence is a no-op: SMS has no composing indicator.
func (c *Client) SendPresence(ctx context.Context, instance store.GatewayInstance, recipient string) error {
	return nil
}
