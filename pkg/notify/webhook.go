package notify

import (
	"context"
	"fmt"
	"os"
	"time"

	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/distribution"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/infra"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/model"

	"github.com/imroc/req/v3"
	"go.uber.org/zap"
)

// Upper bound of one webhook delivery, retries included.
const deliveryTimeout = 30 * time.Second

type AssignmentPayload struct {
	TicketId int64          `json:"ticketId"`
	QueueId  int64          `json:"queueId"`
	AgentId  int64          `json:"agentId"`
	Strategy model.Strategy `json:"strategy"`
	Reason   string         `json:"reason"`
	AtMsec   int64          `json:"atMsec"`
}

// Webhook posts every assignment to an external endpoint, usually the
// ticket pipeline that owns the conversation.
type Webhook struct {
	url    string
	apiKey string

	httpClient *req.Client
	logger     *zap.SugaredLogger
}

func ProvideWebhook(httpClient *req.Client, loggerFactory *infra.LoggerFactory) *Webhook {
	return NewWebhook(os.Getenv("ASSIGNMENT_WEBHOOK_URL"), os.Getenv("ASSIGNMENT_WEBHOOK_KEY"), httpClient, loggerFactory)
}

func NewWebhook(url string, apiKey string, httpClient *req.Client, loggerFactory *infra.LoggerFactory) *Webhook {
	logger := loggerFactory.Create("Webhook").Sugar()
	if url == "" {
		logger.Infof("no webhook url, assignments will not be posted")
	}
	return &Webhook{
		url:        url,
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (w *Webhook) Enabled() bool {
	return w.url != ""
}

// OnAssigned delivers in the background so the distribution call never
// waits on the remote end.
func (w *Webhook) OnAssigned(ctx context.Context, ticket *model.Ticket, result *distribution.Result) {
	if !w.Enabled() {
		return
	}

	payload := &AssignmentPayload{
		TicketId: ticket.ID,
		QueueId:  ticket.QueueID,
		AgentId:  result.Agent.ID,
		Strategy: result.Strategy,
		Reason:   result.Reason,
		AtMsec:   time.Now().UnixMilli(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()

		if err := w.Deliver(ctx, payload); err != nil {
			w.logger.Errorf("ticketId[%v] agentId[%v] %v", payload.TicketId, payload.AgentId, err)
		}
	}()
}

func (w *Webhook) Deliver(ctx context.Context, payload *AssignmentPayload) error {
	resp, err := w.httpClient.R().
		SetContext(ctx).
		SetHeader("apiKey", w.apiKey).
		SetBodyJsonMarshal(payload).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("webhook request failed with status[%v]", resp.Status)
	}

	w.logger.Debugf("delivered ticketId[%v] agentId[%v]", payload.TicketId, payload.AgentId)
	return nil
}
