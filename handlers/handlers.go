package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"liquid-node/liquid"
	"liquid-node/logger"
	"liquid-node/models"
	"liquid-node/repository"
	"liquid-node/state"
	"liquid-node/updater"
)

// LiquidNode is the part of the updater the HTTP API drives.
type LiquidNode interface {
	ProcessBlock(block *models.Block) ([]*models.Transaction, error)
	ProcessMicroBlock(m *models.MicroBlock) error
	RemoveAfter(blockID models.BlockID) ([]*models.Transaction, error)
	BestLiquidState() state.Reader
	History() *updater.History
	LiquidChain() *liquid.Chain
	BestLastBlockInfo(maxTimestamp int64) (models.BlockMinerInfo, error)
}

// Handler contains the HTTP handlers for the node API endpoints
type Handler struct {
	Node LiquidNode
}

// NewHandler creates and returns a new Handler instance
func NewHandler(n LiquidNode) *Handler {
	return &Handler{Node: n}
}

type RollbackRequest struct {
	BlockID models.BlockID `json:"block_id"`
}

// LiquidChainView is the debug rendering of the liquid chain.
type LiquidChainView struct {
	Base             models.BlockID     `json:"base"`
	Reference        models.BlockID     `json:"reference"`
	MicroBlocks      []models.BlockID   `json:"microblocks"`
	Tip              models.BlockID     `json:"tip"`
	ApprovedFeatures []models.FeatureID `json:"approved_features"`
	Transactions     int                `json:"transactions"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Logger.Error("Failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps an updater rejection to a response status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, updater.ErrNotBetterCompetitor):
		return http.StatusConflict
	case errors.Is(err, updater.ErrUnsupportedFeatureActive):
		return http.StatusServiceUnavailable
	case updater.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ProcessBlock handles POST requests carrying a full block
func (h *Handler) ProcessBlock(w http.ResponseWriter, r *http.Request) {
	var block models.Block
	if err := json.NewDecoder(r.Body).Decode(&block); err != nil {
		logger.Logger.Error("Failed to decode block", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	discarded, err := h.Node.ProcessBlock(&block)
	if err != nil {
		logger.Logger.Error("Failed to process block", zap.String("block_id", string(block.ID())), zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":   "Block processed successfully",
		"block_id":  block.ID(),
		"discarded": discarded,
	})
}

// ProcessMicroBlock handles POST requests carrying a microblock
func (h *Handler) ProcessMicroBlock(w http.ResponseWriter, r *http.Request) {
	var micro models.MicroBlock
	if err := json.NewDecoder(r.Body).Decode(&micro); err != nil {
		logger.Logger.Error("Failed to decode microblock", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.Node.ProcessMicroBlock(&micro); err != nil {
		logger.Logger.Error("Failed to process microblock", zap.String("total_res_block_sig", string(micro.TotalResBlockSig)), zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":  "MicroBlock processed successfully",
		"block_id": micro.TotalResBlockSig,
	})
}

// RemoveAfter rolls the chain back so the requested block becomes the tip
func (h *Handler) RemoveAfter(w http.ResponseWriter, r *http.Request) {
	var req RollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BlockID == "" {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	discarded, err := h.Node.RemoveAfter(req.BlockID)
	if err != nil {
		logger.Logger.Error("Failed to roll back", zap.String("block_id", string(req.BlockID)), zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}

	logger.Logger.Info("Rolled back", zap.String("block_id", string(req.BlockID)), zap.Int("discarded", len(discarded)))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "Rolled back successfully",
		"discarded": discarded,
	})
}

// GetBalance returns the balance of an address at the best liquid position
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	addr := models.Address(mux.Vars(r)["address"])
	balance, err := h.Node.BestLiquidState().Balance(addr)
	if err != nil {
		logger.Logger.Error("Failed to read balance", zap.String("address", string(addr)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": addr,
		"balance": balance,
	})
}

func (h *Handler) GetHeight(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"height": h.Node.History().Height()})
}

func (h *Handler) GetLastBlock(w http.ResponseWriter, r *http.Request) {
	last := h.Node.History().LastBlock()
	if last == nil {
		writeError(w, http.StatusNotFound, "blockchain is empty")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"block_id": last.ID(),
		"block":    last,
	})
}

// GetBlockAt returns the block at a height, counting the liquid tip
func (h *Handler) GetBlockAt(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.Atoi(mux.Vars(r)["height"])
	if err != nil || height <= 0 {
		writeError(w, http.StatusBadRequest, "height must be a positive integer")
		return
	}
	block, err := h.Node.History().BlockAt(height)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"block_id": block.ID(),
		"block":    block,
	})
}

// GetLiquidChain renders the current liquid chain for debugging
func (h *Handler) GetLiquidChain(w http.ResponseWriter, r *http.Request) {
	ng := h.Node.LiquidChain()
	if ng == nil {
		writeError(w, http.StatusNotFound, "no liquid chain")
		return
	}
	writeJSON(w, http.StatusOK, LiquidChainView{
		Base:             ng.Base().ID(),
		Reference:        ng.Base().Reference,
		MicroBlocks:      ng.MicroBlockIDs(),
		Tip:              ng.TipID(),
		ApprovedFeatures: ng.ApprovedFeatures(),
		Transactions:     len(ng.Transactions()),
	})
}

// GetBestBlockInfo returns what a block producer should build on
func (h *Handler) GetBestBlockInfo(w http.ResponseWriter, r *http.Request) {
	maxTimestamp := int64(^uint64(0) >> 1)
	if raw := r.URL.Query().Get("max_timestamp"); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "max_timestamp must be an integer")
			return
		}
		maxTimestamp = ts
	}
	info, err := h.Node.BestLastBlockInfo(maxTimestamp)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}
