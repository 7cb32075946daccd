package domain

import "errors"

// ErrNotFound возвращается репозиториями, если запись не найдена.
var ErrNotFound = errors.New("запись не найдена")
