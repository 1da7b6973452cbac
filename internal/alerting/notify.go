package alerting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/shellgate/bastion/internal/database"
	"github.com/shellgate/bastion/internal/logutil"
	"gorm.io/gorm"
)

// Notify types map to the webhook payload shape each provider expects.
const (
	NotifyDingTalk = "dingtalk"
	NotifyWeCom    = "wecom"
	NotifyFeishu   = "feishu"
	NotifyGeneric  = "generic"
)

// WebhookNotifier delivers alert occurrences to each contact's webhook over
// a shared HTTP client. A failure on one contact never affects the others.
type WebhookNotifier struct {
	db     *gorm.DB
	client *http.Client
}

// NewWebhookNotifier wires the notifier to its contact store and HTTP
// client. The client is injected so the composition root controls pooling
// and timeouts shared across all sessions.
func NewWebhookNotifier(db *gorm.DB, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{db: db, client: client}
}

// Notify sends the occurrence to every contact on the rule. Each delivery
// failure is logged and swallowed.
func (n *WebhookNotifier) Notify(occ Occurrence) {
	if len(occ.ContactIDs) == 0 {
		return
	}

	var contacts []database.AlertContact
	if err := n.db.Where("id IN ?", occ.ContactIDs).Find(&contacts).Error; err != nil {
		log.Printf("[notify] load contacts for rule %q: %v", occ.RuleName, err)
		return
	}

	message := fmt.Sprintf("Alert: operator %s executed %q on host %s, triggering rule %q",
		occ.Operator, occ.Command, occ.HostName, occ.RuleName)

	for _, contact := range contacts {
		if err := n.deliver(contact, message); err != nil {
			log.Printf("[notify] deliver to %s (%s): %v", contact.Name, contact.NotifyType, err)
			continue
		}
		log.Printf("[notify] alert %q delivered to %s", occ.RuleName, contact.Name)
	}
}

func (n *WebhookNotifier) deliver(contact database.AlertContact, message string) error {
	payload, err := buildPayload(contact.NotifyType, message)
	if err != nil {
		return err
	}

	resp, err := n.client.Post(contact.Webhook, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// buildPayload shapes the message for each provider's webhook schema.
func buildPayload(notifyType, message string) ([]byte, error) {
	var body interface{}
	switch notifyType {
	case NotifyDingTalk, NotifyWeCom:
		body = map[string]interface{}{
			"msgtype": "text",
			"text":    map[string]string{"content": message},
		}
	case NotifyFeishu:
		body = map[string]interface{}{
			"msg_type": "text",
			"content":  map[string]string{"text": message},
		}
	case NotifyGeneric:
		body = map[string]string{"message": message}
	default:
		return nil, fmt.Errorf("unsupported notify type %q", logutil.SanitizeForLog(notifyType))
	}
	return json.Marshal(body)
}
