package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"mailroom/internal/types"
)

// NotificationRepository provides data access for the notifications history
// table. Records are created pending before a send attempt and moved to
// sent or failed afterwards; they are never deleted by this service.
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository creates a NotificationRepository backed by the
// given database connection (pool or transaction).
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a new history record. A missing ID is generated here, a
// missing status defaults to pending, and the variables snapshot is stored
// as JSONB. The generated ID is written back to the record.
func (r *NotificationRepository) Create(ctx context.Context, n *types.NotificationRecord) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Status == "" {
		n.Status = types.NotificationPending
	}

	varsJSON, err := json.Marshal(n.Variables)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to encode variables snapshot", err)
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO notifications
		 (id, recipient_user_id, recipient_email, trigger_type, status, variables)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		n.ID,
		nilIfEmpty(n.RecipientUserID),
		n.RecipientEmail,
		n.TriggerType,
		string(n.Status),
		varsJSON,
	)
	if err := row.Scan(&n.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create notification record", err)
	}
	return nil
}

// UpdateStatus moves a record to sent or failed. A sent transition stamps
// sent_at; messageID and errorMessage are stored as NULL when empty.
func (r *NotificationRepository) UpdateStatus(ctx context.Context, notificationID string, status types.NotificationStatus, messageID, errorMessage string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications
		 SET status = $2,
		     sent_at = CASE WHEN $2 = 'sent' THEN NOW() ELSE sent_at END,
		     message_id = COALESCE($3, message_id),
		     error_message = $4
		 WHERE id = $1`,
		notificationID,
		string(status),
		nilIfEmpty(messageID),
		nilIfEmpty(errorMessage),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update notification status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundNotification, "notification record not found", nil)
	}
	return nil
}

// GetByID fetches one history record.
func (r *NotificationRepository) GetByID(ctx context.Context, notificationID string) (*types.NotificationRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, COALESCE(recipient_user_id, ''), recipient_email, trigger_type,
		        status, variables, sent_at, COALESCE(message_id, ''),
		        COALESCE(error_message, ''), created_at
		 FROM notifications
		 WHERE id = $1`,
		notificationID,
	)

	var (
		n        types.NotificationRecord
		varsJSON []byte
	)
	err := row.Scan(
		&n.ID,
		&n.RecipientUserID,
		&n.RecipientEmail,
		&n.TriggerType,
		&n.Status,
		&varsJSON,
		&n.SentAt,
		&n.MessageID,
		&n.ErrorMessage,
		&n.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundNotification, "notification record not found", nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch notification record", err)
	}

	if len(varsJSON) > 0 {
		if err := json.Unmarshal(varsJSON, &n.Variables); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "malformed variables snapshot", err)
		}
	}
	return &n, nil
}
