package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/aristath/backoffice/internal/cache"
	"github.com/aristath/backoffice/internal/database"
	"github.com/aristath/backoffice/internal/domain"
	"github.com/aristath/backoffice/internal/ledgermath"
)

// entryRoleFromSourceSystem classifies a pending trade's journal entry
// role from its source_system tag.
func entryRoleFromSourceSystem(s *domain.SourceSystem) domain.EntryRole {
	if s == nil {
		return domain.EntryNormal
	}
	switch *s {
	case domain.SourceModifyReversal, domain.SourceDeleteReversal:
		return domain.EntryReversal
	case domain.SourceModifyReplacement:
		return domain.EntryReplacement
	default:
		return domain.EntryNormal
	}
}

// activityPostPosition creates one journal entry and at least one POSITION
// line, then upserts position_current and write-throughs the cache.
func activityPostPosition(ctx context.Context, e *Executor, stagingID int64) error {
	return runActivity(ctx, e, stagingID, domain.StatusPosition,
		[]domain.StagingStatus{domain.StatusPreCheck, domain.StatusPosition},
		func(ctx context.Context, tx pgx.Tx, t *domain.PendingTrade) (map[string]any, error) {
			amount := t.Quantity.Mul(t.Price.Decimal)
			if t.QCGrossAmount != nil {
				amount = t.QCGrossAmount.Decimal
			}
			amount = ledgermath.RoundMoney(amount)

			tradeType := domain.TradeBuy
			if t.Quantity.Sign() < 0 {
				tradeType = domain.TradeSell
			}
			entryRole := entryRoleFromSourceSystem(t.SourceSystem)

			var referenceEntryID *int64
			if entryRole == domain.EntryReversal || entryRole == domain.EntryReplacement {
				var refID int64
				err := tx.QueryRow(ctx,
					`SELECT id FROM acct_transaction
					 WHERE deal_block_id = $1 AND entry_role = 'normal'
					 ORDER BY created_at DESC LIMIT 1`, t.DealBlockID,
				).Scan(&refID)
				if err == nil {
					referenceEntryID = &refID
				}
			}

			var reversalOf, replacementOf *int64
			if entryRole == domain.EntryReversal {
				reversalOf = referenceEntryID
			} else if entryRole == domain.EntryReplacement {
				replacementOf = referenceEntryID
			}

			now := time.Now().UTC()
			var entryID int64
			if err := tx.QueryRow(ctx,
				`INSERT INTO acct_transaction
					(pending_trade_id, deal_block_id, deal_allocation_id, effective_date, posted_at,
					 trade_type, entry_role, reversal_of_entry_id, replacement_of_entry_id, description, created_at)
				 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,'staging_post',$10)
				 RETURNING id`,
				t.ID, t.DealBlockID, t.DealAllocationID, t.TradeDate, now,
				tradeType, entryRole, reversalOf, replacementOf, now,
			).Scan(&entryID); err != nil {
				return nil, err
			}

			drcr := domain.Debit
			if t.Quantity.Sign() < 0 {
				drcr = domain.Credit
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO acct_entry (entry_id, portfolio_id, instrument_id, account_code, drcr, quantity, amount, currency)
				 VALUES ($1,$2,$3,'POSITION',$4,$5,$6,$7)`,
				entryID, t.PortfolioID, t.InstrumentID, drcr, t.Quantity.Decimal, amount, t.QuoteCurrency,
			); err != nil {
				return nil, err
			}

			if t.PortfolioID == nil {
				// Block-level pending trades have no single portfolio;
				// position upkeep belongs to the allocation-level rows.
				return map[string]any{"staging_id": stagingID, "status": string(domain.StatusPosition), "entry_id": entryID}, nil
			}

			if err := database.AdvisoryLockPosition(ctx, tx, *t.PortfolioID, t.InstrumentID); err != nil {
				return nil, err
			}

			versionUUID := uuid.NewString()
			var newQty decimal.Decimal
			if err := tx.QueryRow(ctx,
				`INSERT INTO position_current (portfolio_id, instrument_id, quantity, cost_basis_rc, last_journal_entry_id, version_uuid, updated_at)
				 VALUES ($1,$2,$3,$4,$5,$6,now())
				 ON CONFLICT (portfolio_id, instrument_id) DO UPDATE SET
				   quantity = position_current.quantity + EXCLUDED.quantity,
				   cost_basis_rc = EXCLUDED.cost_basis_rc,
				   last_journal_entry_id = EXCLUDED.last_journal_entry_id,
				   version_uuid = EXCLUDED.version_uuid,
				   updated_at = now()
				 RETURNING quantity`,
				*t.PortfolioID, t.InstrumentID, t.Quantity.Decimal, costBasisOrNil(t), entryID, versionUUID,
			).Scan(&newQty); err != nil {
				return nil, err
			}

			e.writeThroughPosition(ctx, *t.PortfolioID, t.InstrumentID, cache.PositionEntry{
				Quantity:    ledgermath.Canonical(newQty),
				VersionUUID: versionUUID,
				UpdatedAt:   time.Now().UTC(),
				Source:      "db",
			})

			return map[string]any{"staging_id": stagingID, "status": string(domain.StatusPosition), "entry_id": entryID}, nil
		})
}

func costBasisOrNil(t *domain.PendingTrade) any {
	if t.RCGrossAmount == nil {
		return nil
	}
	return t.RCGrossAmount.Decimal
}

// writeThroughPosition pushes the updated position to the cache; failures
// are logged by Cache itself and never fail the activity.
func (e *Executor) writeThroughPosition(ctx context.Context, portfolioID, instrumentID int64, entry cache.PositionEntry) {
	if e.cache == nil {
		return
	}
	e.cache.SetPosition(ctx, portfolioID, instrumentID, entry)
}
