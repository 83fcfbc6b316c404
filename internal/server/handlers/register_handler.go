package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stationhq/cdregister/internal/domain/models"
	"github.com/stationhq/cdregister/internal/repository"
	"github.com/stationhq/cdregister/internal/service/catalog"
	"github.com/stationhq/cdregister/internal/service/engine"
	"github.com/stationhq/cdregister/internal/service/witness"
	"github.com/stationhq/cdregister/pkg/clients/directory"
)

// RegisterHandler adapts the register services onto HTTP for the
// surrounding application.
type RegisterHandler struct {
	engine     *engine.Engine
	catalogSvc *catalog.Service
	auth       *witness.Authenticator
	dir        directory.Client
	logger     *zap.Logger
}

// NewRegisterHandler constructs the HTTP handler adapter.
func NewRegisterHandler(eng *engine.Engine, catalogSvc *catalog.Service, auth *witness.Authenticator, dir directory.Client, logger *zap.Logger) *RegisterHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegisterHandler{engine: eng, catalogSvc: catalogSvc, auth: auth, dir: dir, logger: logger}
}

// transactionRequest is the inbound proposal payload. The acting user and
// any witness PIN are explicit; nothing comes from ambient session state.
type transactionRequest struct {
	ItemID      string     `json:"itemId" binding:"required"`
	Type        string     `json:"type" binding:"required"`
	Quantity    float64    `json:"quantity"`
	ActorID     string     `json:"actorId" binding:"required"`
	ActorName   string     `json:"actorName" binding:"required"`
	ActorGrade  string     `json:"actorGrade" binding:"required"`
	WitnessID   string     `json:"witnessId"`
	WitnessPin  string     `json:"witnessPin"`
	Notes       string     `json:"notes"`
	BatchNumber string     `json:"batchNumber"`
	ExpiryDate  *time.Time `json:"expiryDate"`
}

// Commit proposes and commits one register transaction. When a witness id
// and PIN accompany the proposal they are verified first and the resulting
// assertion is attached.
func (h *RegisterHandler) Commit(c *gin.Context) {
	var req transactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid transaction payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	txType, err := models.ParseTransactionType(req.Type)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	proposal := engine.Proposal{
		ItemID:   req.ItemID,
		Type:     txType,
		Quantity: req.Quantity,
		Actor: models.Actor{
			ID:    req.ActorID,
			Name:  req.ActorName,
			Grade: models.Grade(req.ActorGrade),
		},
		Notes:       req.Notes,
		BatchNumber: req.BatchNumber,
		ExpiryDate:  req.ExpiryDate,
	}

	if req.WitnessID != "" {
		assertion, err := h.auth.Verify(c.Request.Context(), req.WitnessID, req.WitnessPin)
		if err != nil {
			h.respondWitnessError(c, err)
			return
		}
		proposal.Witness = assertion
	}

	tx, err := h.engine.Commit(c.Request.Context(), proposal)
	if err != nil {
		h.respondCommitError(c, err)
		return
	}

	c.JSON(http.StatusCreated, tx)
}

// VerifyWitness checks a witness PIN on its own, so the form can validate
// the second person before the operator finishes the proposal.
func (h *RegisterHandler) VerifyWitness(c *gin.Context) {
	var req struct {
		WitnessID string `json:"witnessId" binding:"required"`
		Pin       string `json:"pin" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	assertion, err := h.auth.Verify(c.Request.Context(), req.WitnessID, req.Pin)
	if err != nil {
		h.respondWitnessError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"witnessId":  assertion.WitnessID,
		"name":       assertion.Name,
		"verifiedAt": assertion.VerifiedAt,
	})
}

// ListWitnesses returns active staff for the witness picker.
func (h *RegisterHandler) ListWitnesses(c *gin.Context) {
	actors, err := h.dir.ListActive(c.Request.Context())
	if err != nil {
		h.logger.Error("failed listing active staff", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "staff directory unavailable"})
		return
	}
	c.JSON(http.StatusOK, actors)
}

// ListItems returns the whole stock catalog.
func (h *RegisterHandler) ListItems(c *gin.Context) {
	items, err := h.catalogSvc.List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed listing items", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list items"})
		return
	}
	c.JSON(http.StatusOK, items)
}

// GetItem returns one item's current state.
func (h *RegisterHandler) GetItem(c *gin.Context) {
	item, err := h.catalogSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondCommitError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// History returns one item's register entries in commit order.
func (h *RegisterHandler) History(c *gin.Context) {
	txs, err := h.catalogSvc.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondCommitError(c, err)
		return
	}
	c.JSON(http.StatusOK, txs)
}

func (h *RegisterHandler) respondWitnessError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, witness.ErrWitnessNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "witness not found"})
	case errors.Is(err, witness.ErrIncorrectPin):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect pin, please retry"})
	case errors.Is(err, witness.ErrNoCredential):
		c.JSON(http.StatusConflict, gin.H{"error": "witness has no enrolled pin"})
	default:
		h.logger.Error("witness verification failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "witness verification unavailable"})
	}
}

func (h *RegisterHandler) respondCommitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrItemNotFound), errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "stock item not found, refresh the catalog"})
	case errors.Is(err, engine.ErrItemRetired):
		c.JSON(http.StatusConflict, gin.H{"error": "stock item is retired"})
	case errors.Is(err, engine.ErrWitnessRequired):
		c.JSON(http.StatusForbidden, gin.H{"error": "this transaction requires a witness"})
	case errors.Is(err, engine.ErrInvalidWitness):
		c.JSON(http.StatusForbidden, gin.H{"error": "witness must be a different person"})
	case errors.Is(err, engine.ErrInvalidQuantity), errors.Is(err, models.ErrUnknownTransactionType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrInsufficientStock):
		c.JSON(http.StatusConflict, gin.H{"error": "insufficient stock for this transaction"})
	case errors.Is(err, engine.ErrPersistence):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "commit outcome unknown, re-query the register before retrying"})
	default:
		h.logger.Error("transaction failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transaction failed"})
	}
}
