package handlers

import (
	"encoding/xml"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vidioagent/backend/internal/convo"
	"github.com/vidioagent/backend/internal/phone"
	"github.com/vidioagent/backend/internal/store/rabbitmq"
)

// twiML is the synchronous webhook reply. An empty Message means the
// acknowledgment already went out through the messaging API.
type twiML struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

// WhatsAppWebhook is the intake point for inbound customer messages. It
// resolves the tenant, records the conversation, sends a best-effort
// acknowledgment and enqueues the video job. The pipeline runs out-of-band;
// callers only ever see the TwiML acknowledgment.
func (h *Handler) WhatsAppWebhook(c *gin.Context) {
	from := c.PostForm("From")
	to := c.PostForm("To")
	body := c.PostForm("Body")

	ctx := c.Request.Context()

	businessNumber := phone.Normalize(to)
	business, err := h.Repo.GetBusinessByNumber(ctx, businessNumber)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			log.Printf("webhook: no business for number %s", businessNumber)
			c.XML(http.StatusOK, twiML{Message: "This business is not registered with VidioAgent."})
			return
		}
		c.XML(http.StatusOK, twiML{Message: "Something went wrong. Please try again later."})
		return
	}

	if !business.IsActive {
		c.XML(http.StatusOK, twiML{Message: "This business account is currently inactive."})
		return
	}

	customerPhone := phone.Normalize(from)
	customer, err := h.Repo.GetOrCreateCustomer(ctx, customerPhone, business.ID)
	if err != nil {
		log.Printf("webhook: get or create customer %s: %v", customerPhone, err)
		c.XML(http.StatusOK, twiML{Message: "Something went wrong. Please try again later."})
		return
	}

	conversation := &convo.Conversation{
		BusinessID:          business.ID,
		CustomerID:          customer.ID,
		MessageFromCustomer: body,
		Status:              convo.StatusPending,
	}
	if err := h.Repo.Create(ctx, conversation); err != nil {
		log.Printf("webhook: create conversation: %v", err)
		c.XML(http.StatusOK, twiML{Message: "Something went wrong. Please try again later."})
		return
	}

	// Best-effort acknowledgment; a send failure never aborts the flow.
	ack := fmt.Sprintf("Hi! Thanks for messaging %s. I'm preparing a personalized video response for you... 🎥", business.Name)
	if _, err := h.Notifier.SendText(ctx, customerPhone, ack); err != nil {
		log.Printf("webhook: acknowledgment to %s failed: %v", customerPhone, err)
	}

	job := rabbitmq.VideoJob{
		ConversationID: conversation.ID,
		BusinessID:     business.ID,
		CustomerPhone:  customerPhone,
		MessageText:    body,
	}
	if err := h.Queue.PublishJob(ctx, job); err != nil {
		log.Printf("webhook: enqueue convo=%d failed: %v", conversation.ID, err)
		if markErr := h.Repo.MarkFailed(ctx, conversation.ID, "enqueue failed: "+err.Error()); markErr != nil {
			log.Printf("webhook: mark convo=%d failed errored: %v", conversation.ID, markErr)
		}
		c.XML(http.StatusOK, twiML{Message: "Something went wrong. Please try again later."})
		return
	}

	// Acknowledgment already sent out-of-band.
	c.XML(http.StatusOK, twiML{})
}
