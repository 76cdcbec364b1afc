package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenfin/loanledger/internal/loan"
)

var (
	// ErrLoanBusy indicates another mutation holds the loan's lock; callers
	// may retry.
	ErrLoanBusy = errors.New("ledger: loan is locked by another operation")
	// ErrLoanNotFound indicates an unknown loan id.
	ErrLoanNotFound = errors.New("ledger: loan not found")
)

const lockNotAvailable = "55P03"

// Repository loads and saves loan aggregates atomically. Every mutation of
// a loan runs under a row lock on the loan record, serialising concurrent
// events per loan as the engine requires.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Mutate runs fn against the exclusively locked aggregate and persists the
// result. The aggregate either fully commits or is discarded; partial
// application of one event is never observable.
func (r *Repository) Mutate(ctx context.Context, loanID int64, fn func(*loan.Account) error) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("ledger: repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	var acc *loan.Account
	if acc, err = r.loadForUpdate(ctx, tx, loanID); err != nil {
		return err
	}
	if err = fn(acc); err != nil {
		return err
	}
	if err = r.save(ctx, tx, acc); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Load fetches the aggregate without locking, for read projections.
func (r *Repository) Load(ctx context.Context, loanID int64) (*loan.Account, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	acc, err := r.load(ctx, tx, loanID, false)
	if err != nil {
		return nil, err
	}
	return acc, tx.Commit(ctx)
}

// ListActiveIDs returns the ids of loans open for batch processing.
func (r *Repository) ListActiveIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM loans WHERE status IN ('ACTIVE', 'OVERPAID') ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) loadForUpdate(ctx context.Context, tx pgx.Tx, loanID int64) (*loan.Account, error) {
	acc, err := r.load(ctx, tx, loanID, true)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable {
		return nil, ErrLoanBusy
	}
	return acc, err
}

func (r *Repository) load(ctx context.Context, tx pgx.Tx, loanID int64, forUpdate bool) (*loan.Account, error) {
	q := `SELECT id, external_id, currency, principal, status, charged_off,
	             charge_off_reason_id, charge_off_date, fraud, accounting_mode,
	             interleaving, allocation_strategy, delinquency_bucket_id,
	             installment_level_delinquency
	        FROM loans WHERE id = $1`
	if forUpdate {
		q += " FOR UPDATE NOWAIT"
	}
	acc := &loan.Account{}
	err := tx.QueryRow(ctx, q, loanID).Scan(
		&acc.ID, &acc.ExternalID, &acc.Currency, &acc.Principal, &acc.Status,
		&acc.ChargedOff, &acc.ChargeOffReasonID, &acc.ChargeOffDate, &acc.Fraud,
		&acc.Accounting, &acc.Interleaving, &acc.AllocationStrategy,
		&acc.DelinquencyBucketID, &acc.InstallmentLevelDelinquency,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrLoanNotFound, loanID)
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadInstallments(ctx, tx, acc); err != nil {
		return nil, err
	}
	if err := r.loadCharges(ctx, tx, acc); err != nil {
		return nil, err
	}
	if err := r.loadTransactions(ctx, tx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

func (r *Repository) loadInstallments(ctx context.Context, tx pgx.Tx, acc *loan.Account) error {
	rows, err := tx.Query(ctx,
		`SELECT seq, from_date, due_date, kind,
		        due_principal, due_interest, due_fee, due_penalty,
		        paid_principal, paid_interest, paid_fee, paid_penalty,
		        waived_principal, waived_interest, waived_fee, waived_penalty
		   FROM loan_installments WHERE loan_id = $1 ORDER BY seq`, acc.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		ins := &loan.Installment{}
		if err := rows.Scan(
			&ins.Seq, &ins.FromDate, &ins.DueDate, &ins.Kind,
			&ins.Due.Principal, &ins.Due.Interest, &ins.Due.Fee, &ins.Due.Penalty,
			&ins.Paid.Principal, &ins.Paid.Interest, &ins.Paid.Fee, &ins.Paid.Penalty,
			&ins.Waived.Principal, &ins.Waived.Interest, &ins.Waived.Fee, &ins.Waived.Penalty,
		); err != nil {
			return err
		}
		acc.Installments = append(acc.Installments, ins)
	}
	return rows.Err()
}

func (r *Repository) loadCharges(ctx context.Context, tx pgx.Tx, acc *loan.Account) error {
	rows, err := tx.Query(ctx,
		`SELECT id, kind, calculation, amount, due_date, installment_seq,
		        amount_paid, amount_waived, paid_by
		   FROM loan_charges WHERE loan_id = $1 ORDER BY id`, acc.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		ch := &loan.Charge{}
		var paidBy []byte
		if err := rows.Scan(
			&ch.ID, &ch.Kind, &ch.Calculation, &ch.Amount, &ch.DueDate,
			&ch.InstallmentSeq, &ch.AmountPaid, &ch.AmountWaived, &paidBy,
		); err != nil {
			return err
		}
		if len(paidBy) > 0 {
			if err := json.Unmarshal(paidBy, &ch.PaidBy); err != nil {
				return err
			}
		}
		acc.Charges = append(acc.Charges, ch)
	}
	return rows.Err()
}

func (r *Repository) loadTransactions(ctx context.Context, tx pgx.Tx, acc *loan.Account) error {
	rows, err := tx.Query(ctx,
		`SELECT id, seq, external_id, type, date, amount,
		        principal_portion, interest_portion, fee_portion, penalty_portion,
		        overpayment_portion, recovery, reversed, manually_reversed,
		        charge_id, target_seq, reason_id, relations
		   FROM loan_transactions WHERE loan_id = $1 ORDER BY seq, id`, acc.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		t := &loan.Transaction{}
		var relations []byte
		if err := rows.Scan(
			&t.ID, &t.Seq, &t.ExternalID, &t.Type, &t.Date, &t.Amount,
			&t.Breakdown.Principal, &t.Breakdown.Interest, &t.Breakdown.Fee, &t.Breakdown.Penalty,
			&t.OverpaymentPortion, &t.Recovery, &t.Reversed, &t.ManuallyReversed,
			&t.ChargeID, &t.TargetSeq, &t.ReasonID, &relations,
		); err != nil {
			return err
		}
		if len(relations) > 0 {
			if err := json.Unmarshal(relations, &t.Relations); err != nil {
				return err
			}
		}
		acc.Transactions = append(acc.Transactions, t)
	}
	return rows.Err()
}

// save rewrites the aggregate's child rows. Transactions are append-mostly
// but reversal flags and relations change, so the whole set is rewritten
// inside the same locked transaction.
func (r *Repository) save(ctx context.Context, tx pgx.Tx, acc *loan.Account) error {
	if _, err := tx.Exec(ctx,
		`UPDATE loans SET status = $2, charged_off = $3, charge_off_reason_id = $4,
		        charge_off_date = $5, fraud = $6, updated_at = now()
		  WHERE id = $1`,
		acc.ID, acc.Status, acc.ChargedOff, acc.ChargeOffReasonID, acc.ChargeOffDate, acc.Fraud,
	); err != nil {
		return err
	}
	for _, table := range []string{"loan_installments", "loan_charges", "loan_transactions"} {
		if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE loan_id = $1", table), acc.ID); err != nil {
			return err
		}
	}
	for _, ins := range acc.Installments {
		if _, err := tx.Exec(ctx,
			`INSERT INTO loan_installments (
			    loan_id, seq, from_date, due_date, kind,
			    due_principal, due_interest, due_fee, due_penalty,
			    paid_principal, paid_interest, paid_fee, paid_penalty,
			    waived_principal, waived_interest, waived_fee, waived_penalty
			 ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
			acc.ID, ins.Seq, ins.FromDate, ins.DueDate, ins.Kind,
			ins.Due.Principal, ins.Due.Interest, ins.Due.Fee, ins.Due.Penalty,
			ins.Paid.Principal, ins.Paid.Interest, ins.Paid.Fee, ins.Paid.Penalty,
			ins.Waived.Principal, ins.Waived.Interest, ins.Waived.Fee, ins.Waived.Penalty,
		); err != nil {
			return err
		}
	}
	for _, ch := range acc.Charges {
		paidBy, err := json.Marshal(ch.PaidBy)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO loan_charges (
			    loan_id, id, kind, calculation, amount, due_date, installment_seq,
			    amount_paid, amount_waived, paid_by
			 ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			acc.ID, ch.ID, ch.Kind, ch.Calculation, ch.Amount, ch.DueDate,
			ch.InstallmentSeq, ch.AmountPaid, ch.AmountWaived, paidBy,
		); err != nil {
			return err
		}
	}
	for _, t := range acc.Transactions {
		relations, err := json.Marshal(t.Relations)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO loan_transactions (
			    loan_id, id, seq, external_id, type, date, amount,
			    principal_portion, interest_portion, fee_portion, penalty_portion,
			    overpayment_portion, recovery, reversed, manually_reversed,
			    charge_id, target_seq, reason_id, relations
			 ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
			acc.ID, t.ID, t.Seq, t.ExternalID, t.Type, t.Date, t.Amount,
			t.Breakdown.Principal, t.Breakdown.Interest, t.Breakdown.Fee, t.Breakdown.Penalty,
			t.OverpaymentPortion, t.Recovery, t.Reversed, t.ManuallyReversed,
			t.ChargeID, t.TargetSeq, t.ReasonID, relations,
		); err != nil {
			return err
		}
	}
	return nil
}
