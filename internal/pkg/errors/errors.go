package errors

import "errors"

// Общие ошибки приложения
var (
	// ErrNotFound используется, когда запись или ресурс не найдены.
	ErrNotFound = errors.New("record not found")

	// ErrValidation используется для ошибок валидации входных данных.
	ErrValidation = errors.New("validation failed")

	// ErrConflict используется для конфликтов состояния (например, повторная
	// регистрация уже существующего email).
	ErrConflict = errors.New("resource state conflict")

	// ErrStorageUnavailable wraps backend failures of the OTP and user
	// stores. Callers must fail closed on it: skipping OTP persistence
	// would let verification be bypassed entirely.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
