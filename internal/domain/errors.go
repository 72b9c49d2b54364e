package domain

import "errors"

// Таксономия ошибок движка. Хендлеры маппят их на HTTP-статусы,
// всё остальное ядро работает только с errors.Is.
var (
	ErrNotFound  = errors.New("entity not found")
	ErrExpired   = errors.New("identity ttl expired")
	ErrRevoked   = errors.New("identity revoked")
	ErrConflict  = errors.New("approval already processed")
	ErrSaturated = errors.New("context budget saturated")

	// ErrStorage — единственный класс, который уходит клиенту как сбой сервиса,
	// а не как вердикт политики. Запрос при этом fail-closed.
	ErrStorage = errors.New("storage failure")
)
