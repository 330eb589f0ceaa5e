package storage

import (
	"context"

	"poolRental/internal/model"
)

// Storage archives settlement outcomes: ended rentals with their swap
// history, and settled channels. The in-memory managers remain the
// source of truth for live state.
type Storage interface {
	PutRental(ctx context.Context, rental model.Rental, swaps []model.SwapDetail) error
	PutChannel(ctx context.Context, channel model.Channel) error
}
