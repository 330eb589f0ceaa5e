package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poolRental/internal/model"
)

// Store archives ended rentals and settled channels in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// PutRental upserts the rental row and its swap history in one batch.
func (s *Store) PutRental(ctx context.Context, rental model.Rental, swaps []model.SwapDetail) error {
	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO rentals (
			rental_id, chain_id, pool_id, renter, pool_owner,
			start_time, end_time, price_per_second, collateral, status,
			swap_count, total_volume, total_fees_earned, total_gas_cost,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now(),now())
		ON CONFLICT (rental_id)
		DO UPDATE SET
			end_time = EXCLUDED.end_time,
			status = EXCLUDED.status,
			swap_count = EXCLUDED.swap_count,
			total_volume = EXCLUDED.total_volume,
			total_fees_earned = EXCLUDED.total_fees_earned,
			total_gas_cost = EXCLUDED.total_gas_cost,
			updated_at = now()
	`,
		int64(rental.RentalID),
		int64(rental.ChainID),
		int64(rental.PoolID),
		rental.Renter,
		rental.PoolOwner,
		rental.StartTime,
		rental.EndTime,
		rental.PricePerSecond,
		rental.Collateral,
		string(rental.Status),
		int64(rental.SwapCount),
		rental.TotalVolume,
		rental.TotalFeesEarned,
		rental.TotalGasCost,
	)

	for _, swap := range swaps {
		batch.Queue(`
			INSERT INTO rental_swaps (
				rental_id, sequence, ts, swapper, token_in, token_out,
				amount_in, amount_out, gas_price, fee_charged,
				source_chain, dest_chain, is_cross_chain
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
			ON CONFLICT (rental_id, sequence) DO NOTHING
		`,
			int64(swap.RentalID),
			int64(swap.Sequence),
			swap.Timestamp,
			swap.Swapper,
			swap.TokenIn,
			swap.TokenOut,
			swap.AmountIn,
			swap.AmountOut,
			swap.GasPrice,
			swap.FeeCharged,
			int64(swap.SourceChain),
			int64(swap.DestChain),
			swap.IsCrossChain,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < len(swaps)+1; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// PutChannel upserts a settled channel row.
func (s *Store) PutChannel(ctx context.Context, channel model.Channel) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO channels (
			channel_id, participant, token, deposited_amount,
			accrued_balance, status, mock, settlement_tx, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now())
		ON CONFLICT (channel_id)
		DO UPDATE SET
			accrued_balance = EXCLUDED.accrued_balance,
			status = EXCLUDED.status,
			mock = EXCLUDED.mock,
			settlement_tx = EXCLUDED.settlement_tx,
			updated_at = now()
	`,
		channel.ChannelID,
		channel.Participant,
		channel.Token,
		channel.DepositedAmount,
		channel.AccruedBalance,
		string(channel.Status),
		channel.Mock,
		channel.SettlementTx,
	)
	return err
}
