/*
This file holds the vault operation handlers. Each one decodes a JSON body,
invokes the corresponding engine operation, and maps the error taxonomy onto
HTTP status codes: bad input and misconfiguration to 400, violated accounting
preconditions to 422, ledger failures to 502.
*/

package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/vivipolli/evergreen-protocol/internal/engine"
	"github.com/vivipolli/evergreen-protocol/internal/state"
	"github.com/vivipolli/evergreen-protocol/internal/types"
	"github.com/vivipolli/evergreen-protocol/internal/utils"
)

// statusForError maps the engine's error taxonomy to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidAmount),
		errors.Is(err, types.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrVaultNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrVaultExists):
		return http.StatusConflict
	case errors.Is(err, types.ErrInsufficientFunds),
		errors.Is(err, types.ErrDivisionByZero),
		errors.Is(err, types.ErrArithmeticOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrLedger):
		return http.StatusBadGateway
	case errors.Is(err, types.ErrStatePersistence):
		// The ledger already committed; a blind retry would double-apply.
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (ws *WebServer) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return false
	}
	return true
}

type initializeBody struct {
	Authority       string             `json:"authority"`
	BaseAssetID     string             `json:"base_asset_id"`
	TreasuryAccount string             `json:"treasury_account"`
	FeeAccount      string             `json:"fee_account"`
	Schedule        *types.FeeSchedule `json:"schedule,omitempty"`
}

// handleInitialize creates the vault state and its claim-token asset class.
func (ws *WebServer) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var body initializeBody
	if !ws.decodeBody(w, r, &body) {
		return
	}

	req := engine.InitializeRequest{
		VaultID:         ws.vaultID,
		Authority:       body.Authority,
		BaseAssetID:     body.BaseAssetID,
		TreasuryAccount: body.TreasuryAccount,
		FeeAccount:      body.FeeAccount,
	}
	if body.Schedule != nil {
		req.Schedule = *body.Schedule
	}

	st, err := ws.engine.Initialize(r.Context(), req)
	if err != nil {
		webLogger.Error().Err(err).Msg("Vault initialization failed")
		ws.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusCreated, st)
}

type depositBody struct {
	Depositor string `json:"depositor"`
	Amount    uint64 `json:"amount"`
}

// handleDeposit moves base-asset units into custody and mints claim tokens.
func (ws *WebServer) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var body depositBody
	if !ws.decodeBody(w, r, &body) {
		return
	}

	receipt, err := ws.engine.Deposit(r.Context(), engine.DepositRequest{
		VaultID:   ws.vaultID,
		Depositor: body.Depositor,
		Amount:    body.Amount,
	})
	if err != nil {
		webLogger.Error().Err(err).Msg("Deposit failed")
		ws.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, receipt)
}

type purchaseBody struct {
	Seller string `json:"seller"`
	Price  uint64 `json:"price"`
}

// handlePurchase settles a purchased-asset sale out of vault custody.
func (ws *WebServer) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var body purchaseBody
	if !ws.decodeBody(w, r, &body) {
		return
	}

	receipt, err := ws.engine.Purchase(r.Context(), engine.PurchaseRequest{
		VaultID: ws.vaultID,
		Seller:  body.Seller,
		Price:   body.Price,
	})
	if err != nil {
		webLogger.Error().Err(err).Msg("Purchase failed")
		ws.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, receipt)
}

type distributeBody struct {
	Amount uint64 `json:"amount"`
}

// handleDistribute runs one earnings distribution round.
func (ws *WebServer) handleDistribute(w http.ResponseWriter, r *http.Request) {
	var body distributeBody
	if !ws.decodeBody(w, r, &body) {
		return
	}

	report, err := ws.engine.Distribute(r.Context(), engine.DistributeRequest{
		VaultID:     ws.vaultID,
		TotalAmount: body.Amount,
	})
	if err != nil {
		webLogger.Error().Err(err).Msg("Distribution failed")
		ws.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}

	// Partial payout failures commit the round but deserve a distinct code.
	status := http.StatusOK
	if len(report.FailedPayouts()) > 0 {
		status = http.StatusMultiStatus
	}
	ws.writeJSONResponse(w, status, report)
}

// handleRetryDistribution replays unpaid holder payouts for an epoch.
func (ws *WebServer) handleRetryDistribution(w http.ResponseWriter, r *http.Request) {
	epoch, err := strconv.ParseUint(mux.Vars(r)["epoch"], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid epoch")
		return
	}

	report, err := ws.engine.RetryDistribution(r.Context(), ws.vaultID, epoch)
	if err != nil {
		webLogger.Error().Err(err).Uint64("epoch", epoch).Msg("Distribution retry failed")
		ws.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}

	status := http.StatusOK
	if len(report.FailedPayouts()) > 0 {
		status = http.StatusMultiStatus
	}
	ws.writeJSONResponse(w, status, report)
}

// handleGetSummary returns the vault's current accounting state.
func (ws *WebServer) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	st, err := ws.engine.State(r.Context(), ws.vaultID)
	if err != nil {
		ws.writeErrorResponse(w, statusForError(err), err.Error())
		return
	}

	referenceValueDisplay, err := utils.BaseUnitsToDisplay(st.Schedule.ReferenceAssetValue, utils.BaseAssetDecimals)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to convert reference asset value")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to build vault summary")
		return
	}

	response := map[string]interface{}{
		"vault":                   st,
		"reference_asset_display": referenceValueDisplay,
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetOperations returns recent operation receipts
func (ws *WebServer) handleGetOperations(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 200 {
			limit = parsedLimit
		}
	}

	receipts, err := state.RecentReceipts(r.Context(), limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get operation receipts")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve operations")
		return
	}

	response := map[string]interface{}{
		"operations": receipts,
		"count":      len(receipts),
		"limit":      limit,
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}
