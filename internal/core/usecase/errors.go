package usecase

import "errors"

// Определение ошибок сервиса
var (
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrInvalidOrderType = errors.New("invalid order type")
	ErrSameParty        = errors.New("buyer and seller cannot be the same")
	ErrWalletHasPending = errors.New("wallet has pending transactions")
)
