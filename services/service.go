package services

import (
	"errors"

	"shop-service/apperrors"
	"shop-service/models"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

// Notifier is the fire-and-forget side channel for order events. Nothing
// about cart or order state depends on a notification being delivered.
type Notifier interface {
	Dispatch(event models.OrderEvent)
}

type noopNotifier struct{}

func (noopNotifier) Dispatch(models.OrderEvent) {}

func orNoop(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

// internalError passes application errors through and wraps anything else
// as a 500 so the cause never reaches the client.
func internalError(err error) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Wrap(apperrors.ErrInternalServer, err)
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = defaultPage
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

func pageMeta(page, limit int, total int64) models.PageMeta {
	return models.PageMeta{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: calculateTotalPages(total, limit),
	}
}

func calculateTotalPages(total int64, limit int) int {
	if limit <= 0 {
		return 0
	}
	pages := int(total) / limit
	if int(total)%limit != 0 {
		pages++
	}
	return pages
}
