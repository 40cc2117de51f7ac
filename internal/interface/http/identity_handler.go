package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/identity-lifecycle-service/internal/application"
	"github.com/oksasatya/identity-lifecycle-service/internal/domain/entity"
	"github.com/oksasatya/identity-lifecycle-service/pkg/helpers"
	"github.com/oksasatya/identity-lifecycle-service/pkg/response"
	"github.com/oksasatya/identity-lifecycle-service/pkg/validation"
)

type IdentityHandler struct {
	Svc        *application.Service
	Logger     *logrus.Logger
	BcryptCost int
}

func NewIdentityHandler(svc *application.Service, logger *logrus.Logger, bcryptCost int) *IdentityHandler {
	return &IdentityHandler{Svc: svc, Logger: logger, BcryptCost: bcryptCost}
}

type createIdentityRequest struct {
	Username string `json:"username" binding:"required,username"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,pwd"`
	FullName string `json:"full_name" binding:"omitempty,fullname"`
}

type socialUpsertRequest struct {
	Provider    string `json:"provider" binding:"required,provider"`
	ProviderID  string `json:"provider_id" binding:"required,max=255"`
	Email       string `json:"email" binding:"omitempty,email"`
	FullName    string `json:"full_name" binding:"omitempty,fullname"`
	Headline    string `json:"headline" binding:"omitempty,headline"`
	ProfileLink string `json:"profile_link" binding:"omitempty,link"`
	HeadshotURL string `json:"headshot_url" binding:"omitempty,link"`
}

type updateProfileRequest struct {
	Email       *string `json:"email" binding:"omitempty,email"`
	FullName    *string `json:"full_name" binding:"omitempty,fullname"`
	Headline    *string `json:"headline" binding:"omitempty,headline"`
	ProfileLink *string `json:"profile_link" binding:"omitempty,link"`
	HeadshotURL *string `json:"headshot_url" binding:"omitempty,link"`
}

type transitionRequest struct {
	Status string `json:"status" binding:"required"`
}

type searchQuery struct {
	Query string `form:"query"`
	Page  int    `form:"page" binding:"gte=0"`
	Size  int    `form:"size" binding:"gte=0"`
}

type providerQuery struct {
	Provider   string `form:"provider" binding:"required"`
	ProviderID string `form:"providerId" binding:"required"`
}

type availabilityQuery struct {
	Email    string `form:"email" binding:"omitempty,email"`
	Username string `form:"username"`
}

func (h *IdentityHandler) Create(c *gin.Context) {
	var req createIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	hash, err := helpers.HashPassword(req.Password, h.BcryptCost)
	if err != nil {
		if h.Logger != nil {
			h.Logger.WithError(err).Error("hash password failed")
		}
		response.Error[any](c, http.StatusInternalServerError, "failed to create identity", nil)
		return
	}
	created, err := h.Svc.Create(c.Request.Context(), entity.CredentialSignup{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		FullName:     req.FullName,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, application.ToView(*created), "identity created", nil)
}

func (h *IdentityHandler) UpsertSocial(c *gin.Context) {
	var req socialUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	got, err := h.Svc.UpsertSocial(c.Request.Context(), entity.SocialProfile{
		Provider:    req.Provider,
		ProviderID:  req.ProviderID,
		Email:       req.Email,
		FullName:    req.FullName,
		Headline:    req.Headline,
		ProfileLink: req.ProfileLink,
		HeadshotURL: req.HeadshotURL,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, application.ToView(*got), "identity upserted", nil)
}

func (h *IdentityHandler) Get(c *gin.Context) {
	got, err := h.Svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, application.ToView(*got), "identity", nil)
}

func (h *IdentityHandler) GetByProvider(c *gin.Context) {
	var q providerQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid query", validation.ToDetails(err))
		return
	}
	got, err := h.Svc.GetByProvider(c.Request.Context(), q.Provider, q.ProviderID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, application.ToView(*got), "identity", nil)
}

func (h *IdentityHandler) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	got, err := h.Svc.UpdateProfile(c.Request.Context(), c.Param("id"), entity.ProfilePatch{
		Email:       req.Email,
		FullName:    req.FullName,
		Headline:    req.Headline,
		ProfileLink: req.ProfileLink,
		HeadshotURL: req.HeadshotURL,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, application.ToView(*got), "profile updated", nil)
}

func (h *IdentityHandler) Transition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	target, ok := entity.ParseStatus(req.Status)
	if !ok {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", map[string]string{"status": "unknown status"})
		return
	}
	got, err := h.Svc.Transition(c.Request.Context(), c.Param("id"), target)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, application.ToView(*got), "status updated", nil)
}

func (h *IdentityHandler) Delete(c *gin.Context) {
	if err := h.Svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *IdentityHandler) Search(c *gin.Context) {
	var q searchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid query", validation.ToDetails(err))
		return
	}
	page, err := h.Svc.Search(c.Request.Context(), q.Query, q.Page, q.Size)
	if err != nil {
		h.fail(c, err)
		return
	}
	items := make([]application.IdentityView, 0, len(page.Items))
	for _, i := range page.Items {
		items = append(items, application.ToView(i))
	}
	response.Success(c, http.StatusOK, items, "identities", response.PageMeta{
		Page:       page.Page,
		Size:       page.Size,
		TotalCount: page.Total,
	})
}

func (h *IdentityHandler) Availability(c *gin.Context) {
	var q availabilityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid query", validation.ToDetails(err))
		return
	}
	av, err := h.Svc.Availability(c.Request.Context(), q.Email, q.Username)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, av, "availability", nil)
}

func (h *IdentityHandler) Stats(c *gin.Context) {
	counts, err := h.Svc.StatusCounts(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, counts, "identity counts by status", nil)
}

// fail translates a domain error into an HTTP error envelope.
func (h *IdentityHandler) fail(c *gin.Context, err error) {
	var (
		dup     *entity.DuplicateIdentityError
		illegal *entity.IllegalTransitionError
	)
	switch {
	case errors.Is(err, entity.ErrInvalidInput):
		response.Error[any](c, http.StatusBadRequest, "invalid input", err.Error())
	case errors.As(err, &dup):
		response.Error[any](c, http.StatusConflict, "identity already exists", map[string]string{"field": dup.Field})
	case errors.Is(err, entity.ErrNotFound):
		response.Error[any](c, http.StatusNotFound, "identity not found", nil)
	case errors.As(err, &illegal):
		response.Error[any](c, http.StatusConflict, "illegal status transition", map[string]string{
			"from": string(illegal.From),
			"to":   string(illegal.To),
		})
	case errors.Is(err, entity.ErrTimeout):
		response.Error[any](c, http.StatusGatewayTimeout, "store timeout", nil)
	case errors.Is(err, entity.ErrStoreUnavailable):
		response.Error[any](c, http.StatusServiceUnavailable, "store unavailable", nil)
	default:
		if h.Logger != nil {
			h.Logger.WithError(err).WithField("path", c.FullPath()).Error("unhandled identity error")
		}
		response.Error[any](c, http.StatusInternalServerError, "internal error", nil)
	}
}
