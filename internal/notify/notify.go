package notify

import (
	"context"
	"fmt"

	"dispatch-server/internal/clients/mail"
	"dispatch-server/internal/observability"
	"dispatch-server/internal/store"

	"github.com/google/uuid"
)

// NotifyStore defines the database operations required by Service
type NotifyStore interface {
	GetUserEmailByID(ctx context.Context, userID uuid.UUID) (string, error)
}

// Service emails the owning operator when a campaign reaches a terminal
// state. All notifications are best effort.
type Service struct {
	store     NotifyStore
	mail      *mail.ResendClient
	from      string
	webAppURI string
	logger    *observability.Logger
}

func New(notifyStore NotifyStore, mailClient *mail.ResendClient, from, webAppURI string, logger *observability.Logger) *Service {
	return &Service{
		store:     notifyStore,
		mail:      mailClient,
		from:      from,
		webAppURI: webAppURI,
		logger:    logger,
	}
}

// CampaignFinished sends the completion summary email for a campaign.
func (s *Service) CampaignFinished(ctx context.Context, campaign store.Campaign) error {
	email, err := s.store.GetUserEmailByID(ctx, campaign.UserID)
	if err != nil {
		return fmt.Errorf("failed to resolve owner email: %w", err)
	}

	subject := fmt.Sprintf("Campaign %q finished", campaign.Name)
	body := fmt.Sprintf(`<p>Your campaign <strong>%s</strong> has finished.</p>
<ul>
  <li>Sent: %d</li>
  <li>Failed: %d</li>
  <li>Lots completed: %d of %d</li>
</ul>
<p><a href="%s/campaigns/%s">View the full dispatch report</a></p>`,
		campaign.Name,
		campaign.SentCount,
		campaign.FailedCount,
		campaign.CompletedLots,
		campaign.TotalLots,
		s.webAppURI,
		campaign.ID,
	)

	if _, err := s.mail.SendEmail(ctx, s.from, email, subject, body); err != nil {
		return fmt.Errorf("failed to send completion email: %w", err)
	}

	s.logger.Info(ctx, fmt.Sprintf("completion email sent to %s for campaign %s", email, campaign.ID))
	return nil
}
