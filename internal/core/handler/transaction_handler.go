package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/flipzy/transaction-service/internal/core/logger"
	"github.com/flipzy/transaction-service/internal/core/models"
	"github.com/flipzy/transaction-service/internal/core/repository"
	"github.com/flipzy/transaction-service/internal/core/usecase"
)

type TransactionHandler struct {
	usecase usecase.TransactionUsecase
	wallets usecase.WalletUsecase
	log     logger.Logger
}

type CreateTransactionRequest struct {
	BuyerID       uuid.UUID `json:"buyer_id"`
	SellerID      uuid.UUID `json:"seller_id"`
	ItemID        uuid.UUID `json:"item_id"`
	OrderType     string    `json:"order_type"`
	TitleSnapshot string    `json:"title_snapshot"`
	PriceSnapshot string    `json:"price_snapshot"`
}

type TransactionResponse struct {
	ID            uuid.UUID         `json:"id"`
	BuyerID       uuid.UUID         `json:"buyer_id"`
	SellerID      uuid.UUID         `json:"seller_id"`
	ItemID        uuid.UUID         `json:"item_id"`
	OrderType     string            `json:"order_type"`
	TitleSnapshot string            `json:"title_snapshot"`
	PriceSnapshot string            `json:"price_snapshot"`
	Status        string            `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	Links         map[string]string `json:"_links"`
}

func NewTransactionHandler(usecase usecase.TransactionUsecase, wallets usecase.WalletUsecase, log logger.Logger) *TransactionHandler {
	return &TransactionHandler{usecase: usecase, wallets: wallets, log: log}
}

func (h *TransactionHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/transactions", h.CreateTransaction).Methods("POST")
	router.HandleFunc("/transactions", h.ListTransactions).Methods("GET")
	router.HandleFunc("/transactions/{tx_id}", h.GetTransaction).Methods("GET")
	router.HandleFunc("/transactions/{tx_id}/checkout", h.Checkout).Methods("POST")
}

func (h *TransactionHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Warn("Failed to decode request body", logger.ErrorField("error", err))
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	if req.BuyerID == uuid.Nil || req.SellerID == uuid.Nil || req.ItemID == uuid.Nil {
		respondWithError(w, http.StatusBadRequest, "buyer_id, seller_id and item_id are required")
		return
	}

	orderType := models.OrderType(strings.ToUpper(req.OrderType))
	if !orderType.Valid() {
		respondWithError(w, http.StatusBadRequest, "order_type must be REAL or VIRTUAL")
		return
	}

	price, err := parseAmount(req.PriceSnapshot)
	if err != nil {
		h.log.Warn("Invalid price snapshot",
			logger.StringField("price_snapshot", req.PriceSnapshot),
			logger.ErrorField("error", err))
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := h.usecase.CreateTransaction(r.Context(), usecase.CreateTransactionInput{
		BuyerID:       req.BuyerID,
		SellerID:      req.SellerID,
		ItemID:        req.ItemID,
		OrderType:     orderType,
		TitleSnapshot: req.TitleSnapshot,
		PriceSnapshot: price,
	})
	if err != nil {
		h.handleTransactionError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/transactions/%s", tx.ID))
	respondWithJSON(w, http.StatusCreated, h.transactionResponse(r.Context(), tx))
}

func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	txs, err := h.usecase.ListTransactions(r.Context(), filter)
	if err != nil {
		h.handleTransactionError(w, err)
		return
	}

	responses := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		responses = append(responses, h.transactionResponse(r.Context(), tx))
	}
	respondWithJSON(w, http.StatusOK, responses)
}

func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := h.transactionID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := h.usecase.GetTransaction(r.Context(), id)
	if err != nil {
		h.handleTransactionError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, h.transactionResponse(r.Context(), tx))
}

func (h *TransactionHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	id, err := h.transactionID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := h.usecase.Checkout(r.Context(), id)
	if err != nil {
		h.handleTransactionError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, h.transactionResponse(r.Context(), tx))
}

func (h *TransactionHandler) parseFilter(r *http.Request) (repository.TransactionFilter, error) {
	var filter repository.TransactionFilter
	query := r.URL.Query()

	if raw := query.Get("buyer_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid buyer_id")
		}
		filter.BuyerID = &id
	}
	if raw := query.Get("seller_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid seller_id")
		}
		filter.SellerID = &id
	}
	if raw := query.Get("status"); raw != "" {
		status := models.TransactionStatus(strings.ToUpper(raw))
		if !status.Valid() {
			return filter, fmt.Errorf("invalid status")
		}
		filter.Status = &status
	}
	return filter, nil
}

func (h *TransactionHandler) transactionID(r *http.Request) (uuid.UUID, error) {
	raw := mux.Vars(r)["tx_id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid transaction id: %s", raw)
	}
	return id, nil
}

func (h *TransactionHandler) handleTransactionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, usecase.ErrInvalidAmount),
		errors.Is(err, usecase.ErrInvalidOrderType),
		errors.Is(err, usecase.ErrSameParty):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrWalletNotFound):
		respondWithError(w, http.StatusNotFound, "Wallet not found")
	case errors.Is(err, repository.ErrTransactionNotFound):
		respondWithError(w, http.StatusNotFound, "Transaction not found")
	case errors.Is(err, repository.ErrInvalidTransition):
		respondWithError(w, http.StatusConflict, err.Error())
	default:
		h.log.Error("Failed to process transaction operation", logger.ErrorField("error", err))
		respondWithError(w, http.StatusInternalServerError, "Failed to process operation")
	}
}

// transactionResponse decorates the record with navigation links. Party links
// stay empty when the party no longer has a wallet.
func (h *TransactionHandler) transactionResponse(ctx context.Context, tx *models.Transaction) TransactionResponse {
	links := map[string]string{
		"self":          fmt.Sprintf("/transactions/%s", tx.ID),
		"buyer_wallet":  "",
		"seller_wallet": "",
	}
	if wallet, err := h.wallets.GetWalletByUser(ctx, tx.BuyerID); err == nil {
		links["buyer_wallet"] = fmt.Sprintf("/wallets/%s", wallet.ID)
	}
	if wallet, err := h.wallets.GetWalletByUser(ctx, tx.SellerID); err == nil {
		links["seller_wallet"] = fmt.Sprintf("/wallets/%s", wallet.ID)
	}

	return TransactionResponse{
		ID:            tx.ID,
		BuyerID:       tx.BuyerID,
		SellerID:      tx.SellerID,
		ItemID:        tx.ItemID,
		OrderType:     string(tx.OrderType),
		TitleSnapshot: tx.TitleSnapshot,
		PriceSnapshot: tx.PriceSnapshot.StringFixed(2),
		Status:        string(tx.Status),
		CreatedAt:     tx.CreatedAt,
		Links:         links,
	}
}
