/**
 * @description
 * PostgreSQL implementation of the Repository interface using pgx. Atomic
 * multi-row flows (application acceptance, ledger creation, settlement) are
 * single repository methods wrapping one transaction, so no partial state is
 * ever visible to other requests.
 */
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/workhive/marketplace-service/internal/domain"
)

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository is the pgx-backed Repository implementation.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository creates a repository backed by the given pool.
func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const jobColumns = `
	id, public_id, owner_id, worker_id, title, description,
	status, payment_status, commission_status,
	payment, commission, commission_symbol,
	pending_at, approved_at, in_progress_at, finished_at,
	deleted_at, created_at, updated_at
`

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	err := row.Scan(
		&job.ID,
		&job.PublicID,
		&job.OwnerID,
		&job.WorkerID,
		&job.Title,
		&job.Description,
		&job.Status,
		&job.PaymentStatus,
		&job.CommissionStatus,
		&job.Payment,
		&job.Commission,
		&job.CommissionSymbol,
		&job.PendingAt,
		&job.ApprovedAt,
		&job.InProgressAt,
		&job.FinishedAt,
		&job.DeletedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// FindUserByID returns the user if it exists and is not soft-deleted.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	query := `
		SELECT id, username, card_token, customer_token, deleted_at, created_at
		FROM users
		WHERE id = $1 AND deleted_at IS NULL
	`
	var user domain.User
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&user.ID,
		&user.Username,
		&user.CardToken,
		&user.CustomerToken,
		&user.DeletedAt,
		&user.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CreateJob inserts a job and enqueues its creation events atomically.
func (r *PostgresRepository) CreateJob(ctx context.Context, job *domain.Job, events []domain.NotificationEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO jobs (
			id, public_id, owner_id, worker_id, title, description,
			status, payment_status, commission_status,
			payment, commission, commission_symbol,
			pending_at, approved_at, in_progress_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = tx.Exec(ctx, query,
		job.ID,
		job.PublicID,
		job.OwnerID,
		job.WorkerID,
		job.Title,
		job.Description,
		job.Status,
		job.PaymentStatus,
		job.CommissionStatus,
		job.Payment,
		job.Commission,
		job.CommissionSymbol,
		job.PendingAt,
		job.ApprovedAt,
		job.InProgressAt,
		job.FinishedAt,
	)
	if err != nil {
		return err
	}

	if err := enqueueEventsTx(ctx, tx, events); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// FindJobByID returns the job if it exists and is not soft-deleted.
func (r *PostgresRepository) FindJobByID(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1 AND deleted_at IS NULL`
	job, err := scanJob(r.db.QueryRow(ctx, query, jobID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// UpdateJob persists every mutable job field and enqueues events atomically.
func (r *PostgresRepository) UpdateJob(ctx context.Context, job *domain.Job, events []domain.NotificationEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := updateJobTx(ctx, tx, job); err != nil {
		return err
	}
	if err := enqueueEventsTx(ctx, tx, events); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func updateJobTx(ctx context.Context, tx pgx.Tx, job *domain.Job) error {
	query := `
		UPDATE jobs
		SET worker_id = $2,
		    title = $3,
		    description = $4,
		    status = $5,
		    payment_status = $6,
		    commission_status = $7,
		    payment = $8,
		    commission = $9,
		    commission_symbol = $10,
		    pending_at = $11,
		    approved_at = $12,
		    in_progress_at = $13,
		    finished_at = $14,
		    updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	tag, err := tx.Exec(ctx, query,
		job.ID,
		job.WorkerID,
		job.Title,
		job.Description,
		job.Status,
		job.PaymentStatus,
		job.CommissionStatus,
		job.Payment,
		job.Commission,
		job.CommissionSymbol,
		job.PendingAt,
		job.ApprovedAt,
		job.InProgressAt,
		job.FinishedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// SoftDeleteJob marks a job deleted. Returns false when the job was already
// gone (missing or previously deleted).
func (r *PostgresRepository) SoftDeleteJob(ctx context.Context, jobID uuid.UUID, deletedAt time.Time, events []domain.NotificationEvent) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE jobs
		SET deleted_at = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, jobID, deletedAt)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := enqueueEventsTx(ctx, tx, events); err != nil {
		return false, err
	}

	return true, tx.Commit(ctx)
}

// FindApplicationByID fetches one application.
func (r *PostgresRepository) FindApplicationByID(ctx context.Context, applicationID uuid.UUID) (*domain.Application, error) {
	query := `
		SELECT id, job_id, owner_id, worker_id, status, status_changed_at, created_at
		FROM applications
		WHERE id = $1
	`
	var app domain.Application
	err := r.db.QueryRow(ctx, query, applicationID).Scan(
		&app.ID,
		&app.JobID,
		&app.OwnerID,
		&app.WorkerID,
		&app.Status,
		&app.StatusChangedAt,
		&app.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrApplicationNotFound
		}
		return nil, err
	}
	return &app, nil
}

// HasActiveApplication reports whether a non-declined application already
// exists for the (job, worker) pair.
func (r *PostgresRepository) HasActiveApplication(ctx context.Context, jobID, workerID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM applications
			WHERE job_id = $1 AND worker_id = $2 AND status <> 'declined'
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, jobID, workerID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// CreateApplication inserts an application and its creation event atomically.
// The partial unique index on (job_id, worker_id) WHERE status <> 'declined'
// backs the duplicate-application invariant under concurrency; a unique
// violation surfaces as ErrDuplicateApplication.
func (r *PostgresRepository) CreateApplication(ctx context.Context, application *domain.Application, events []domain.NotificationEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO applications (id, job_id, owner_id, worker_id, status, status_changed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = tx.Exec(ctx, query,
		application.ID,
		application.JobID,
		application.OwnerID,
		application.WorkerID,
		application.Status,
		application.StatusChangedAt,
	)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return ErrDuplicateApplication
		}
		return err
	}

	if err := enqueueEventsTx(ctx, tx, events); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// AcceptApplication runs the full acceptance pipeline in one transaction:
// decline the sibling applications (emitting a rejection event per sibling),
// mark this application accepted, persist the already-transitioned job,
// materialize commission ledger rows for worker and owner, then enqueue the
// trailing events. Rollback leaves no partial state behind.
func (r *PostgresRepository) AcceptApplication(ctx context.Context, params AcceptApplicationParams) (*AcceptApplicationResult, error) {
	application := params.Application
	job := params.Job

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// 1. Decline every other application on the job.
	rows, err := tx.Query(ctx, `
		UPDATE applications
		SET status = 'declined', status_changed_at = $3
		WHERE job_id = $1 AND id <> $2 AND status <> 'declined'
		RETURNING id, worker_id
	`, application.JobID, application.ID, params.Now)
	if err != nil {
		return nil, err
	}

	var siblingEvents []domain.NotificationEvent
	var declinedWorkers []uuid.UUID
	for rows.Next() {
		var siblingID, siblingWorker uuid.UUID
		if err := rows.Scan(&siblingID, &siblingWorker); err != nil {
			rows.Close()
			return nil, err
		}
		declinedWorkers = append(declinedWorkers, siblingWorker)
		siblingEvents = append(siblingEvents, domain.NewApplicationEvent(
			domain.EventApplicationRejected, siblingWorker, application.JobID, siblingID, params.Now,
		))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// 2. Mark this application accepted.
	tag, err := tx.Exec(ctx, `
		UPDATE applications
		SET status = 'accepted', status_changed_at = $2
		WHERE id = $1 AND status <> 'accepted'
	`, application.ID, params.Now)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() > 0 {
		application.Status = domain.ApplicationStatusAccepted
		application.StatusChangedAt = params.Now
	}

	// 3. Persist the approved job (worker assigned, timestamp stamped).
	if err := updateJobTx(ctx, tx, job); err != nil {
		return nil, err
	}

	// 4. Commission ledger entries for both parties.
	workerPayment, err := getOrCreateOpenPaymentTx(ctx, tx, application.WorkerID)
	if err != nil {
		return nil, err
	}
	if _, err := getOrCreateCommissionTx(ctx, tx, application.WorkerID, job.ID, workerPayment.ID); err != nil {
		return nil, err
	}
	ownerPayment, err := getOrCreateOpenPaymentTx(ctx, tx, application.OwnerID)
	if err != nil {
		return nil, err
	}
	if _, err := getOrCreateCommissionTx(ctx, tx, application.OwnerID, job.ID, ownerPayment.ID); err != nil {
		return nil, err
	}

	// 5. Events, siblings first so the outbox sequence preserves ordering.
	if err := enqueueEventsTx(ctx, tx, siblingEvents); err != nil {
		return nil, err
	}
	if err := enqueueEventsTx(ctx, tx, params.TrailingEvents); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &AcceptApplicationResult{
		Application:     application,
		DeclinedWorkers: declinedWorkers,
		WorkerPaymentID: workerPayment.ID,
		OwnerPaymentID:  ownerPayment.ID,
	}, nil
}

// DeclineApplication marks one application declined and enqueues its events.
func (r *PostgresRepository) DeclineApplication(ctx context.Context, applicationID uuid.UUID, statusChangedAt time.Time, events []domain.NotificationEvent) (*domain.Application, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var app domain.Application
	err = tx.QueryRow(ctx, `
		UPDATE applications
		SET status = 'declined', status_changed_at = $2
		WHERE id = $1
		RETURNING id, job_id, owner_id, worker_id, status, status_changed_at, created_at
	`, applicationID, statusChangedAt).Scan(
		&app.ID,
		&app.JobID,
		&app.OwnerID,
		&app.WorkerID,
		&app.Status,
		&app.StatusChangedAt,
		&app.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrApplicationNotFound
		}
		return nil, err
	}

	if err := enqueueEventsTx(ctx, tx, events); err != nil {
		return nil, err
	}

	return &app, tx.Commit(ctx)
}

const paymentColumns = `
	id, public_id, payer_id, status, reject_reason,
	progress_started_at, paid_at, rejected_at, created_at, updated_at
`

func scanPayment(row pgx.Row) (*domain.PlatformPayment, error) {
	var p domain.PlatformPayment
	err := row.Scan(
		&p.ID,
		&p.PublicID,
		&p.PayerID,
		&p.Status,
		&p.RejectReason,
		&p.ProgressStartedAt,
		&p.PaidAt,
		&p.RejectedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetOrCreateOpenPayment returns the payer's open (unpaid) billing cycle,
// creating one if none exists.
func (r *PostgresRepository) GetOrCreateOpenPayment(ctx context.Context, payerID uuid.UUID) (*domain.PlatformPayment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	payment, err := getOrCreateOpenPaymentTx(ctx, tx, payerID)
	if err != nil {
		return nil, err
	}
	return payment, tx.Commit(ctx)
}

// getOrCreateOpenPaymentTx is the lookup-before-insert core. The partial
// unique index on (payer_id) WHERE status = 'unpaid' makes concurrent
// callers converge on a single open cycle: the loser's insert is a no-op and
// the re-select picks up the winner's row.
func getOrCreateOpenPaymentTx(ctx context.Context, tx pgx.Tx, payerID uuid.UUID) (*domain.PlatformPayment, error) {
	selectQuery := `SELECT ` + paymentColumns + ` FROM platform_payments WHERE payer_id = $1 AND status = 'unpaid'`

	payment, err := scanPayment(tx.QueryRow(ctx, selectQuery, payerID))
	if err == nil {
		return payment, nil
	}
	if err != pgx.ErrNoRows {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO platform_payments (id, public_id, payer_id, status)
		VALUES ($1, $2, $3, 'unpaid')
		ON CONFLICT (payer_id) WHERE status = 'unpaid' DO NOTHING
	`, uuid.New(), newPaymentPublicID(), payerID)
	if err != nil {
		return nil, err
	}

	payment, err = scanPayment(tx.QueryRow(ctx, selectQuery, payerID))
	if err != nil {
		return nil, fmt.Errorf("open payment missing after insert for payer %s: %w", payerID, err)
	}
	return payment, nil
}

// GetOrCreateCommission returns the (payer, job) commission line item,
// creating it against the given billing cycle if absent.
func (r *PostgresRepository) GetOrCreateCommission(ctx context.Context, payerID, jobID, paymentID uuid.UUID) (*domain.PlatformCommission, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	commission, err := getOrCreateCommissionTx(ctx, tx, payerID, jobID, paymentID)
	if err != nil {
		return nil, err
	}
	return commission, tx.Commit(ctx)
}

func getOrCreateCommissionTx(ctx context.Context, tx pgx.Tx, payerID, jobID, paymentID uuid.UUID) (*domain.PlatformCommission, error) {
	selectQuery := `
		SELECT id, payment_id, user_id, job_id, created_at
		FROM platform_commissions
		WHERE user_id = $1 AND job_id = $2
	`

	scan := func(row pgx.Row) (*domain.PlatformCommission, error) {
		var c domain.PlatformCommission
		if err := row.Scan(&c.ID, &c.PaymentID, &c.UserID, &c.JobID, &c.CreatedAt); err != nil {
			return nil, err
		}
		return &c, nil
	}

	commission, err := scan(tx.QueryRow(ctx, selectQuery, payerID, jobID))
	if err == nil {
		return commission, nil
	}
	if err != pgx.ErrNoRows {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO platform_commissions (id, payment_id, user_id, job_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, job_id) DO NOTHING
	`, uuid.New(), paymentID, payerID, jobID)
	if err != nil {
		return nil, err
	}

	commission, err = scan(tx.QueryRow(ctx, selectQuery, payerID, jobID))
	if err != nil {
		return nil, fmt.Errorf("commission missing after insert for payer %s job %s: %w", payerID, jobID, err)
	}
	return commission, nil
}

// CreateApplicationPayments materializes the billing obligations for both
// parties of a newly-assigned job in one transaction. Either both payers end
// up with an open cycle and a commission row, or neither change is visible.
func (r *PostgresRepository) CreateApplicationPayments(ctx context.Context, jobID, ownerID, workerID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, payerID := range []uuid.UUID{workerID, ownerID} {
		payment, err := getOrCreateOpenPaymentTx(ctx, tx, payerID)
		if err != nil {
			return err
		}
		if _, err := getOrCreateCommissionTx(ctx, tx, payerID, jobID, payment.ID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// ListCollectablePayments fetches payments eligible for the fee-collection
// batch: open or rejected cycles, plus progress rows whose claim is older
// than the configured retry window (a failed gateway submission leaves the
// row in progress; without this clause it would never be retried).
func (r *PostgresRepository) ListCollectablePayments(ctx context.Context, progressStaleBefore time.Time) ([]domain.PlatformPayment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM platform_payments
		WHERE status IN ('unpaid', 'rejected')
		   OR (status = 'progress' AND progress_started_at < $1)
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, progressStaleBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.PlatformPayment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *payment)
	}
	return payments, rows.Err()
}

// ClaimPaymentForCollection moves a payment to progress. Returns false when
// another batch run already claimed it.
func (r *PostgresRepository) ClaimPaymentForCollection(ctx context.Context, paymentID uuid.UUID, now time.Time, progressStaleBefore time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE platform_payments
		SET status = 'progress', progress_started_at = $2, updated_at = NOW()
		WHERE id = $1
		  AND (status IN ('unpaid', 'rejected')
		       OR (status = 'progress' AND progress_started_at < $3))
	`, paymentID, now, progressStaleBefore)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListCommissionCharges returns each commission on the payment joined to its
// job's payment amount.
func (r *PostgresRepository) ListCommissionCharges(ctx context.Context, paymentID uuid.UUID) ([]domain.CommissionCharge, error) {
	query := `
		SELECT c.id, c.job_id, j.payment
		FROM platform_commissions c
		JOIN jobs j ON j.id = c.job_id
		WHERE c.payment_id = $1
		ORDER BY c.created_at ASC
	`
	rows, err := r.db.Query(ctx, query, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var charges []domain.CommissionCharge
	for rows.Next() {
		var charge domain.CommissionCharge
		if err := rows.Scan(&charge.CommissionID, &charge.JobID, &charge.JobPayment); err != nil {
			return nil, err
		}
		charges = append(charges, charge)
	}
	return charges, rows.Err()
}

// FindPaymentByPublicID resolves a settlement webhook's correlation id.
func (r *PostgresRepository) FindPaymentByPublicID(ctx context.Context, publicID string) (*domain.PlatformPayment, error) {
	query := `SELECT ` + paymentColumns + ` FROM platform_payments WHERE public_id = $1`
	payment, err := scanPayment(r.db.QueryRow(ctx, query, publicID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return payment, nil
}

// ListPaymentsByPayer returns a payer's billing cycles, newest first.
func (r *PostgresRepository) ListPaymentsByPayer(ctx context.Context, payerID uuid.UUID) ([]domain.PlatformPayment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM platform_payments
		WHERE payer_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, payerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.PlatformPayment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *payment)
	}
	return payments, rows.Err()
}

// MarkPaymentPaid settles a billing cycle and enqueues its events atomically.
func (r *PostgresRepository) MarkPaymentPaid(ctx context.Context, paymentID uuid.UUID, paidAt time.Time, events []domain.NotificationEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE platform_payments
		SET status = 'paid',
		    paid_at = $2,
		    reject_reason = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND status <> 'paid'
	`, paymentID, paidAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Already settled; webhook replays are a no-op.
		return tx.Commit(ctx)
	}

	if err := enqueueEventsTx(ctx, tx, events); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// MarkPaymentRejected records a failed charge with the gateway's reason. The
// guard excludes both settled and already-rejected cycles: a replayed failure
// webhook must not enqueue the denial events a second time.
func (r *PostgresRepository) MarkPaymentRejected(ctx context.Context, paymentID uuid.UUID, reason string, rejectedAt time.Time, events []domain.NotificationEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE platform_payments
		SET status = 'rejected',
		    reject_reason = $2,
		    rejected_at = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('paid', 'rejected')
	`, paymentID, reason, rejectedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tx.Commit(ctx)
	}

	if err := enqueueEventsTx(ctx, tx, events); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ClaimOutboxMessages claims a batch of pending (or stale-processing)
// notification events for publishing, oldest first.
func (r *PostgresRepository) ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]OutboxMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	if staleAfterSeconds <= 0 {
		staleAfterSeconds = 120
	}

	query := `
		WITH candidates AS (
			SELECT id
			FROM notification_outbox
			WHERE (
				(status = 'pending' AND next_attempt_at <= NOW())
				OR (status = 'processing' AND processing_started_at < NOW() - ($2 * INTERVAL '1 second'))
			)
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE notification_outbox AS o
		SET status = 'processing',
			processing_started_at = NOW(),
			attempts = o.attempts + 1
		FROM candidates
		WHERE o.id = candidates.id
		RETURNING o.id, o.exchange, o.routing_key, o.payload::text, o.attempts
	`
	rows, err := r.db.Query(ctx, query, limit, staleAfterSeconds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]OutboxMessage, 0, limit)
	for rows.Next() {
		var (
			msg         OutboxMessage
			payloadText string
		)
		if err := rows.Scan(&msg.ID, &msg.Exchange, &msg.RoutingKey, &payloadText, &msg.Attempts); err != nil {
			return nil, err
		}
		msg.Payload = []byte(payloadText)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MarkOutboxPublished finalizes a successfully published event.
func (r *PostgresRepository) MarkOutboxPublished(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE notification_outbox
		SET status = 'published',
			published_at = NOW(),
			processing_started_at = NULL,
			last_error = NULL
		WHERE id = $1
	`, id)
	return err
}

// MarkOutboxFailed schedules a failed publish for retry.
func (r *PostgresRepository) MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	if len(reason) > 2000 {
		reason = reason[:2000]
	}
	_, err := r.db.Exec(ctx, `
		UPDATE notification_outbox
		SET status = 'pending',
			next_attempt_at = NOW() + ($2 * INTERVAL '1 second'),
			processing_started_at = NULL,
			last_error = $3
		WHERE id = $1
	`, id, retryAfterSeconds, reason)
	return err
}

func enqueueEventsTx(ctx context.Context, tx pgx.Tx, events []domain.NotificationEvent) error {
	for _, event := range events {
		blob, err := json.Marshal(event)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO notification_outbox (exchange, routing_key, payload)
			VALUES ($1, $2, $3::jsonb)
		`, domain.NotificationExchange, string(event.Kind), string(blob))
		if err != nil {
			return fmt.Errorf("failed to enqueue notification event: %w", err)
		}
	}
	return nil
}

func newPaymentPublicID() string {
	return "pp_" + uuid.NewString()
}
