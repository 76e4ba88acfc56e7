package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/flipzy/transaction-service/internal/core/logger"
	"github.com/flipzy/transaction-service/internal/core/models"
	"github.com/flipzy/transaction-service/internal/core/repository"
	"github.com/flipzy/transaction-service/internal/core/usecase"
)

// Amounts travel as decimal strings: up to 18 integer digits, at most two
// fractional digits, comma accepted as the decimal separator.
var amountRegexp = regexp.MustCompile(`^\s*\d{1,18}([.,]\d{1,2})?\s*$`)

type WalletHandler struct {
	usecase usecase.WalletUsecase
	log     logger.Logger
}

type CreateWalletRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

type DepositRequest struct {
	Amount string `json:"amount"`
}

type WalletResponse struct {
	ID        uuid.UUID         `json:"id"`
	UserID    uuid.UUID         `json:"user_id"`
	Balance   string            `json:"balance"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Links     map[string]string `json:"_links"`
}

func NewWalletHandler(usecase usecase.WalletUsecase, log logger.Logger) *WalletHandler {
	return &WalletHandler{usecase: usecase, log: log}
}

func (h *WalletHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/wallets", h.CreateWallet).Methods("POST")
	router.HandleFunc("/wallets", h.ListWallets).Methods("GET")
	router.HandleFunc("/wallets/{wallet_id}", h.GetWallet).Methods("GET")
	router.HandleFunc("/wallets/{wallet_id}/deposit", h.Deposit).Methods("POST")
	router.HandleFunc("/wallets/{wallet_id}", h.DeleteWallet).Methods("DELETE")
}

func (h *WalletHandler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	var req CreateWalletRequest
	if err := h.decodeRequest(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == uuid.Nil {
		respondWithError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	wallet, err := h.usecase.CreateWallet(r.Context(), req.UserID)
	if err != nil {
		h.handleWalletError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/wallets/%s", wallet.ID))
	respondWithJSON(w, http.StatusCreated, walletResponse(wallet))
}

func (h *WalletHandler) ListWallets(w http.ResponseWriter, r *http.Request) {
	var userID *uuid.UUID
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		userID = &id
	}

	wallets, err := h.usecase.ListWallets(r.Context(), userID)
	if err != nil {
		h.handleWalletError(w, err)
		return
	}

	responses := make([]WalletResponse, 0, len(wallets))
	for _, wallet := range wallets {
		responses = append(responses, walletResponse(wallet))
	}
	respondWithJSON(w, http.StatusOK, responses)
}

func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	id, err := h.walletID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	wallet, err := h.usecase.GetWallet(r.Context(), id)
	if err != nil {
		h.handleWalletError(w, err)
		return
	}

	body, err := json.Marshal(walletResponse(wallet))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to encode wallet")
		return
	}

	etag := computeETag(body)
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	id, err := h.walletID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req DepositRequest
	if err := h.decodeRequest(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.log.Warn("Invalid amount",
			logger.StringField("amount", req.Amount),
			logger.ErrorField("error", err))
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	wallet, err := h.usecase.Deposit(r.Context(), id, amount)
	if err != nil {
		h.handleWalletError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, walletResponse(wallet))
}

func (h *WalletHandler) DeleteWallet(w http.ResponseWriter, r *http.Request) {
	id, err := h.walletID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.usecase.DeleteWallet(r.Context(), id); err != nil {
		h.handleWalletError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *WalletHandler) decodeRequest(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.log.Warn("Failed to decode request body", logger.ErrorField("error", err))
		return fmt.Errorf("invalid request payload")
	}
	return nil
}

func (h *WalletHandler) walletID(r *http.Request) (uuid.UUID, error) {
	raw := mux.Vars(r)["wallet_id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid wallet id: %s", raw)
	}
	return id, nil
}

func (h *WalletHandler) handleWalletError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrWalletNotFound):
		respondWithError(w, http.StatusNotFound, "Wallet not found")
	case errors.Is(err, repository.ErrDuplicateWallet):
		respondWithError(w, http.StatusConflict, "User already has a wallet")
	case errors.Is(err, usecase.ErrInvalidAmount):
		respondWithError(w, http.StatusBadRequest, "Invalid amount")
	case errors.Is(err, usecase.ErrWalletHasPending):
		respondWithError(w, http.StatusConflict, "Wallet has pending transactions")
	default:
		h.log.Error("Failed to process wallet operation", logger.ErrorField("error", err))
		respondWithError(w, http.StatusInternalServerError, "Failed to process operation")
	}
}

func walletResponse(wallet *models.Wallet) WalletResponse {
	return WalletResponse{
		ID:        wallet.ID,
		UserID:    wallet.UserID,
		Balance:   wallet.Balance.StringFixed(2),
		CreatedAt: wallet.CreatedAt,
		UpdatedAt: wallet.UpdatedAt,
		Links: map[string]string{
			"self": fmt.Sprintf("/wallets/%s", wallet.ID),
		},
	}
}

func parseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.ReplaceAll(raw, " ", ""), ",", ".")

	if !amountRegexp.MatchString(cleaned) {
		return decimal.Zero, fmt.Errorf("invalid amount format: %s", raw)
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("could not parse amount: %v", err)
	}

	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("amount must be positive")
	}

	return amount, nil
}
