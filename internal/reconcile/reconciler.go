package reconcile

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"

	"nexusdex/internal/events"
	"nexusdex/internal/metrics"
	"nexusdex/internal/persistence"
	"nexusdex/internal/pool"
)

// eventPageSize limits the number of journal rows read per query.
const eventPageSize = 500

// Reconciler checks that the pool's custody balances cover its recorded
// reserves and that the journal replays to the persisted pool state.
type Reconciler struct {
	manager *pool.Manager
	store   *persistence.Store
	codec   *events.Codec
	metrics *metrics.Metrics
}

// NewReconciler creates a reconciler. store and m may be nil.
func NewReconciler(manager *pool.Manager, store *persistence.Store, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		manager: manager,
		store:   store,
		codec:   events.NewCodec(),
		metrics: m,
	}
}

// CustodyResult compares custody balances with reserves.
type CustodyResult struct {
	Reserves pool.Reserves
	CustodyA *uint256.Int
	CustodyB *uint256.Int

	// SurplusA and SurplusB are custody minus reserve. Assets sent to the
	// custody account outside the pool make them positive.
	SurplusA *big.Int
	SurplusB *big.Int
}

// Healthy reports whether custody covers both reserves.
func (r *CustodyResult) Healthy() bool {
	return r.SurplusA.Sign() >= 0 && r.SurplusB.Sign() >= 0
}

// CheckCustody compares custody balances with the recorded reserves.
func (r *Reconciler) CheckCustody(ctx context.Context) (*CustodyResult, error) {
	reserves, balanceA, balanceB, err := r.manager.Custody(ctx)
	if err != nil {
		return nil, err
	}

	result := &CustodyResult{
		Reserves: reserves,
		CustodyA: balanceA,
		CustodyB: balanceB,
		SurplusA: new(big.Int).Sub(balanceA.ToBig(), reserves.A.ToBig()),
		SurplusB: new(big.Int).Sub(balanceB.ToBig(), reserves.B.ToBig()),
	}

	if r.metrics != nil {
		a, _ := new(big.Float).SetInt(result.SurplusA).Float64()
		b, _ := new(big.Float).SetInt(result.SurplusB).Float64()
		r.metrics.RecordReconciliation(a, b, result.Healthy())
	}
	return result, nil
}

// ReplayResult contains statistics from replaying the journal.
type ReplayResult struct {
	EventsFound   int
	EventsApplied int
	LastSequence  uint64
	Reserves      pool.Reserves

	// Consistent is true when the replayed reserves match the persisted pool row.
	Consistent bool
	Duration   time.Duration
}

// Replay walks the journaled Sync events of the pool in pages and compares
// the final reserves with the persisted pool state.
func (r *Reconciler) Replay(ctx context.Context) (*ReplayResult, error) {
	if r.store == nil {
		return nil, fmt.Errorf("replay requires a store")
	}

	startTime := time.Now()
	address := r.manager.Address()
	result := &ReplayResult{
		Reserves: pool.Reserves{A: new(uint256.Int), B: new(uint256.Int)},
	}

	var afterID int64
	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		page, err := r.store.Events(ctx, address, afterID, eventPageSize)
		if err != nil {
			return result, fmt.Errorf("reading journal after row %d: %w", afterID, err)
		}
		if len(page) == 0 {
			break
		}
		result.EventsFound += len(page)

		for _, rec := range page {
			afterID = rec.ID
			if rec.Kind != events.KindSync {
				continue
			}
			sync, err := r.codec.DecodeSync(rec.Log)
			if err != nil {
				log.Warn().
					Err(err).
					Int64("id", rec.ID).
					Uint64("sequence", rec.Log.Sequence).
					Msg("Failed to decode Sync event during replay")
				continue
			}
			result.Reserves = pool.Reserves{A: sync.ReserveA, B: sync.ReserveB}
			result.LastSequence = rec.Log.Sequence
			result.EventsApplied++
		}

		if len(page) < eventPageSize {
			break
		}
	}

	persisted, err := r.store.LoadPool(ctx, address)
	if err != nil {
		return result, fmt.Errorf("loading pool state: %w", err)
	}
	if persisted == nil {
		result.Consistent = result.EventsFound == 0
	} else {
		stored, err := persisted.Reserves()
		if err != nil {
			return result, err
		}
		result.Consistent = stored.A.Eq(result.Reserves.A) &&
			stored.B.Eq(result.Reserves.B) &&
			persisted.Sequence == result.LastSequence
	}
	result.Duration = time.Since(startTime)

	log.Info().
		Int("events_found", result.EventsFound).
		Int("events_applied", result.EventsApplied).
		Uint64("last_sequence", result.LastSequence).
		Bool("consistent", result.Consistent).
		Dur("duration", result.Duration).
		Msg("Journal replay complete")

	return result, nil
}

// Run checks custody every interval until ctx is canceled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			res, err := r.CheckCustody(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Custody check failed")
				continue
			}
			if !res.Healthy() {
				log.Error().
					Str("surplus_a", res.SurplusA.String()).
					Str("surplus_b", res.SurplusB.String()).
					Msg("Custody balance below recorded reserves")
				continue
			}
			log.Debug().
				Str("surplus_a", res.SurplusA.String()).
				Str("surplus_b", res.SurplusB.String()).
				Msg("Custody reconciled")
		}
	}
}
