// Package web provides the REST API for managing workflows, campaigns and
// contacts and for launching and pausing campaigns.
package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/vantagecrm/cadence/pkg/eventbus"
	"github.com/vantagecrm/cadence/pkg/events"
	"github.com/vantagecrm/cadence/pkg/models"
	"github.com/vantagecrm/cadence/pkg/persistence"
)

type APIHandlers struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewAPIHandlers(
	store persistence.Persistence,
	publisher eventbus.EventPublisher,
	validate *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		persistence: store,
		publisher:   publisher,
		validator:   validate,
		logger:      logger.With("module", "api"),
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Cadence API is healthy"
	httpStatus := http.StatusOK

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "Cadence API is unhealthy: " + err.Error()
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}

// Workflows

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	body := c.Body()

	if err := validateWorkflowDocument(body); err != nil {
		return badRequest(c, err.Error())
	}

	var workflow models.Workflow
	if err := json.Unmarshal(body, &workflow); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(workflow); err != nil {
		return badRequest(c, err.Error())
	}

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	workflow.CreatedAt = time.Now().UTC()
	workflow.UpdatedAt = workflow.CreatedAt

	if err := h.persistence.WorkflowRepository().SaveWorkflow(c.Context(), &workflow); err != nil {
		return handleStoreError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.persistence.WorkflowRepository().Workflows(c.Context())
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows, "total_count": len(workflows)})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.persistence.WorkflowRepository().WorkflowByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(workflow)
}

// Campaigns

func (h *APIHandlers) CreateCampaign(c fiber.Ctx) error {
	var campaign models.Campaign
	if err := c.Bind().JSON(&campaign); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(campaign); err != nil {
		return badRequest(c, err.Error())
	}

	for _, kind := range campaign.ChannelSequence {
		if !kind.Valid() {
			return badRequest(c, "Unknown channel kind: "+string(kind))
		}
	}

	if campaign.WorkflowID != "" {
		if _, err := h.persistence.WorkflowRepository().WorkflowByID(c.Context(), campaign.WorkflowID); err != nil {
			return handleStoreError(c, err)
		}
	}

	if campaign.ID == "" {
		campaign.ID = uuid.New().String()
	}

	if campaign.Status == "" {
		campaign.Status = models.CampaignStatusDraft
	}

	campaign.CreatedAt = time.Now().UTC()
	campaign.UpdatedAt = campaign.CreatedAt

	if err := h.persistence.CampaignRepository().SaveCampaign(c.Context(), &campaign); err != nil {
		return handleStoreError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(campaign)
}

func (h *APIHandlers) GetCampaigns(c fiber.Ctx) error {
	campaigns, err := h.persistence.CampaignRepository().Campaigns(c.Context())
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{"campaigns": campaigns, "total_count": len(campaigns)})
}

func (h *APIHandlers) GetCampaign(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Campaign ID is required")
	}

	campaign, err := h.persistence.CampaignRepository().CampaignByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(campaign)
}

// LaunchCampaign marks the campaign active and asks the workers to fan it
// out. The API itself never executes runs.
func (h *APIHandlers) LaunchCampaign(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Campaign ID is required")
	}

	campaign, err := h.persistence.CampaignRepository().CampaignByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	if campaign.Status == models.CampaignStatusDeleted {
		return conflict(c, "Campaign has been deleted")
	}

	campaign.Status = models.CampaignStatusActive
	campaign.UpdatedAt = time.Now().UTC()

	if err := h.persistence.CampaignRepository().SaveCampaign(c.Context(), campaign); err != nil {
		return handleStoreError(c, err)
	}

	event := events.CampaignDispatched{
		BaseEvent:  events.NewBaseEvent(events.CampaignDispatchedEvent, campaign.ID),
		WorkflowID: campaign.WorkflowID,
	}
	if err := h.publisher.Publish(c.Context(), campaign.ID, event); err != nil {
		return internalError(c, err)
	}

	h.logger.InfoContext(c.Context(), "Campaign launch requested", "campaign_id", campaign.ID)

	return c.Status(fiber.StatusAccepted).JSON(campaign)
}

// PauseCampaign marks the campaign paused and tells workers to cancel its
// in-flight runs.
func (h *APIHandlers) PauseCampaign(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Campaign ID is required")
	}

	campaign, err := h.persistence.CampaignRepository().CampaignByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	campaign.Status = models.CampaignStatusPaused
	campaign.UpdatedAt = time.Now().UTC()

	if err := h.persistence.CampaignRepository().SaveCampaign(c.Context(), campaign); err != nil {
		return handleStoreError(c, err)
	}

	event := events.CampaignPaused{
		BaseEvent: events.NewBaseEvent(events.CampaignPausedEvent, campaign.ID),
	}
	if err := h.publisher.Publish(c.Context(), campaign.ID, event); err != nil {
		return internalError(c, err)
	}

	h.logger.InfoContext(c.Context(), "Campaign pause requested", "campaign_id", campaign.ID)

	return c.Status(fiber.StatusAccepted).JSON(campaign)
}

// GetCampaignStats reports the sent-message count recorded by the gateways.
func (h *APIHandlers) GetCampaignStats(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Campaign ID is required")
	}

	if _, err := h.persistence.CampaignRepository().CampaignByID(c.Context(), id); err != nil {
		return handleStoreError(c, err)
	}

	count, err := h.persistence.AuditRepository().SentCount(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{"campaign_id": id, "messages_sent": count})
}

// Contacts

func (h *APIHandlers) CreateContact(c fiber.Ctx) error {
	var contact models.Contact
	if err := c.Bind().JSON(&contact); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(contact); err != nil {
		return badRequest(c, err.Error())
	}

	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}

	contact.CreatedAt = time.Now().UTC()
	contact.UpdatedAt = contact.CreatedAt

	if err := h.persistence.ContactRepository().SaveContact(c.Context(), &contact); err != nil {
		return handleStoreError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(contact)
}

func (h *APIHandlers) GetContact(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Contact ID is required")
	}

	contact, err := h.persistence.ContactRepository().ContactByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(contact)
}

// Inbound

// RecordInboundRequest is the webhook payload posted by channel listeners
// when a contact replies. At least one of contact_id and identifier must be
// set.
type RecordInboundRequest struct {
	Platform   models.ChannelKind `json:"platform"    validate:"required"`
	ContactID  string             `json:"contact_id"`
	Identifier string             `json:"identifier"`
	CampaignID string             `json:"campaign_id"`
	Content    string             `json:"content"`
}

// RecordInbound stores a reply and notifies waiting runs so they can branch
// without waiting out their full response window.
func (h *APIHandlers) RecordInbound(c fiber.Ctx) error {
	var req RecordInboundRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if !req.Platform.Valid() {
		return badRequest(c, "Unknown channel kind: "+string(req.Platform))
	}

	if req.ContactID == "" && req.Identifier == "" {
		return badRequest(c, "Either contact_id or identifier is required")
	}

	message := &models.InboundMessage{
		Platform:   req.Platform,
		ContactID:  req.ContactID,
		Identifier: req.Identifier,
		CampaignID: req.CampaignID,
		Content:    req.Content,
		CreatedAt:  time.Now().UTC(),
	}

	if err := h.persistence.InboundRepository().InsertInbound(c.Context(), message); err != nil {
		return handleStoreError(c, err)
	}

	event := events.InboundReceived{
		BaseEvent:  events.NewBaseEvent(events.InboundReceivedEvent, req.CampaignID),
		ContactID:  req.ContactID,
		Identifier: req.Identifier,
		Platform:   req.Platform,
	}
	if err := h.publisher.Publish(c.Context(), req.CampaignID, event); err != nil {
		h.logger.WarnContext(c.Context(), "Failed to publish inbound notification", "error", err)
	}

	return c.Status(fiber.StatusCreated).JSON(message)
}

// Runs

// GetCampaignRuns lists persisted run states for a campaign.
func (h *APIHandlers) GetCampaignRuns(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Campaign ID is required")
	}

	states, err := h.persistence.RunStateRepository().ActiveRunStates(c.Context())
	if err != nil {
		return handleStoreError(c, err)
	}

	runs := make([]*models.RunState, 0)

	for _, state := range states {
		if state.CampaignID == id {
			runs = append(runs, state)
		}
	}

	return c.JSON(fiber.Map{"campaign_id": id, "runs": runs, "total_count": len(runs)})
}
