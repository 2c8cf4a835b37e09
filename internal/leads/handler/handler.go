// Package handler exposes the lead HTTP endpoints: the public ingestion
// surface and the internal query surface.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/ingest"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/leads/transport"
	"leadflow_backend/internal/tenants"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// LeadReader is the query side of the lead repository.
type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	ListEvents(ctx context.Context, leadID, tenantID uuid.UUID) ([]domain.LeadEvent, error)
	Search(ctx context.Context, params repository.SearchParams) ([]domain.Lead, int, error)
}

// TenantResolver maps a public slug to a tenant.
type TenantResolver interface {
	GetBySlug(ctx context.Context, slug string) (tenants.Tenant, error)
}

type Handler struct {
	ingest  *ingest.Service
	reader  LeadReader
	tenants TenantResolver
	val     *validator.Validator
}

func New(ingestSvc *ingest.Service, reader LeadReader, tenantResolver TenantResolver, val *validator.Validator) *Handler {
	return &Handler{
		ingest:  ingestSvc,
		reader:  reader,
		tenants: tenantResolver,
		val:     val,
	}
}

// RegisterPublicRoutes mounts the unauthenticated ingestion endpoints.
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.POST("/:tenantSlug/leads", h.IngestWebForm)
	rg.POST("/:tenantSlug/rdstation", h.IngestRDStation)
}

// RegisterRoutes mounts the internal query endpoints.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/leads/:id", h.GetLead)
	rg.GET("/leads/:id/events", h.ListLeadEvents)
	rg.GET("/tenants/:tenantSlug/leads", h.SearchLeads)
}

// IngestWebForm accepts a web form submission for the tenant in the URL.
func (h *Handler) IngestWebForm(c *gin.Context) {
	var req transport.WebFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	lead, err := h.ingest.IngestWebForm(c.Request.Context(), ingest.WebFormInput{
		TenantSlug:  c.Param("tenantSlug"),
		Name:        req.Name,
		Phone:       req.Phone,
		Email:       req.Email,
		Company:     req.Company,
		City:        req.City,
		State:       req.State,
		Message:     req.Message,
		SourceURL:   req.SourceURL,
		UTMSource:   req.UTMSource,
		UTMCampaign: req.UTMCampaign,
		UTMMedium:   req.UTMMedium,
		UTMContent:  req.UTMContent,
		Gclid:       req.Gclid,
		Fbclid:      req.Fbclid,
	})
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.Created(c, transport.IngestResponse{LeadID: lead.ID, Status: string(lead.Status)})
}

// IngestRDStation accepts an RD Station conversion webhook.
func (h *Handler) IngestRDStation(c *gin.Context) {
	var req transport.RDStationWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.val.Struct(req.Payload); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	lead, err := h.ingest.IngestRDStation(c.Request.Context(), ingest.RDStationInput{
		TenantSlug:    c.Param("tenantSlug"),
		ExternalUUID:  req.Payload.UUID,
		Name:          req.Payload.Name,
		MobilePhone:   req.Payload.MobilePhone,
		PersonalPhone: req.Payload.PersonalPhone,
		Email:         req.Payload.Email,
		Company:       req.Payload.Company,
		City:          req.Payload.City,
		State:         req.Payload.State,
		CustomFields:  req.Payload.CustomFields,
		SourceOrigin:  req.Payload.LatestSourceOrigin,
		UTMSource:     req.Payload.UTMSource,
		UTMCampaign:   req.Payload.UTMCampaign,
		UTMMedium:     req.Payload.UTMMedium,
		UTMContent:    req.Payload.UTMContent,
	})
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, transport.IngestResponse{LeadID: lead.ID, Status: string(lead.Status)})
}

// GetLead returns one lead by id.
func (h *Handler) GetLead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid lead id", nil)
		return
	}

	lead, err := h.reader.GetByID(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		httpkit.Error(c, http.StatusNotFound, "lead not found", nil)
		return
	}
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "failed to load lead", nil)
		return
	}

	httpkit.OK(c, transport.FromLead(lead))
}

// ListLeadEvents returns the audit trail for one lead, oldest first.
func (h *Handler) ListLeadEvents(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid lead id", nil)
		return
	}

	lead, err := h.reader.GetByID(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		httpkit.Error(c, http.StatusNotFound, "lead not found", nil)
		return
	}
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "failed to load lead", nil)
		return
	}

	events, err := h.reader.ListEvents(c.Request.Context(), lead.ID, lead.TenantID)
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "failed to load events", nil)
		return
	}

	items := make([]transport.LeadEventResponse, 0, len(events))
	for _, e := range events {
		items = append(items, transport.FromEvent(e))
	}
	httpkit.OK(c, gin.H{"items": items})
}

// SearchLeads returns a filtered, paged list of a tenant's leads.
func (h *Handler) SearchLeads(c *gin.Context) {
	tenant, err := h.tenants.GetBySlug(c.Request.Context(), c.Param("tenantSlug"))
	if errors.Is(err, tenants.ErrNotFound) {
		httpkit.Error(c, http.StatusNotFound, "tenant not found", nil)
		return
	}
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "failed to load tenant", nil)
		return
	}

	params := repository.SearchParams{
		TenantID: tenant.ID,
		Query:    c.Query("query"),
		Page:     intQuery(c, "page", 1),
		PageSize: intQuery(c, "pageSize", 20),
	}

	if raw := c.Query("status"); raw != "" {
		status, err := domain.ParseStatus(raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid status filter", nil)
			return
		}
		params.Status = &status
	}
	if raw := c.Query("source"); raw != "" {
		source, ok := domain.ParseSource(raw)
		if !ok {
			httpkit.Error(c, http.StatusBadRequest, "invalid source filter", nil)
			return
		}
		params.Source = &source
	}
	if raw := c.Query("startDate"); raw != "" {
		start, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid startDate, expected RFC3339", nil)
			return
		}
		params.StartDate = &start
	}
	if raw := c.Query("endDate"); raw != "" {
		end, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid endDate, expected RFC3339", nil)
			return
		}
		params.EndDate = &end
	}

	leads, total, err := h.reader.Search(c.Request.Context(), params)
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "search failed", nil)
		return
	}

	items := make([]transport.LeadResponse, 0, len(leads))
	for _, lead := range leads {
		items = append(items, transport.FromLead(lead))
	}

	httpkit.OK(c, transport.LeadListResponse{
		Items:    items,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
