package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mossy-p/reception-signaling/internal/calls"
	"github.com/mossy-p/reception-signaling/internal/models"
	apperrors "github.com/mossy-p/reception-signaling/pkg/errors"
)

// CallRepository persists call history. It implements calls.Journal.
type CallRepository struct {
	db *gorm.DB
}

var _ calls.Journal = (*CallRepository)(nil)

// NewCallRepository constructs a repository backed by db.
func NewCallRepository(db *gorm.DB) (*CallRepository, error) {
	if db == nil {
		return nil, errors.New("call repository: db is required")
	}
	return &CallRepository{db: db}, nil
}

// Record upserts the call. Rows are only overwritten by a newer version, so
// journal writes that land out of order never move a call backwards.
func (r *CallRepository) Record(ctx context.Context, call calls.Call) error {
	record := recordFromCall(call)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"version", "visitor_name", "visitor_email",
			"staff_conn_id", "staff_user_id", "staff_name", "staff_department",
			"status", "decision", "notes", "end_reason", "duration_millis",
			"started_at", "ended_at", "updated_at",
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "calls.version < excluded.version"},
		}},
	}).Create(&record).Error
}

// Find loads a call by id.
func (r *CallRepository) Find(ctx context.Context, id string) (calls.Call, error) {
	var record models.CallRecord
	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return calls.Call{}, apperrors.ErrCallNotFound.WithMessage("call %s not found", id)
	}
	if err != nil {
		return calls.Call{}, err
	}
	return callFromRecord(record), nil
}

// ListRecent returns the most recently created calls, newest first.
func (r *CallRepository) ListRecent(ctx context.Context, limit int) ([]calls.Call, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var records []models.CallRecord
	if err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]calls.Call, len(records))
	for i, rec := range records {
		out[i] = callFromRecord(rec)
	}
	return out, nil
}

func recordFromCall(c calls.Call) models.CallRecord {
	return models.CallRecord{
		ID:              c.ID,
		Version:         c.Version,
		VisitorConnID:   c.VisitorID,
		VisitorName:     c.Visitor.Name,
		VisitorEmail:    c.Visitor.Email,
		StaffConnID:     c.StaffID,
		StaffUserID:     c.Staff.UserID,
		StaffName:       c.Staff.Name,
		StaffDepartment: c.Staff.Department,
		Purpose:         c.Purpose,
		Description:     c.Description,
		Status:          string(c.Status),
		Decision:        string(c.Decision),
		Notes:           c.Notes,
		EndReason:       c.EndReason,
		DurationMillis:  c.Duration.Milliseconds(),
		CreatedAt:       c.CreatedAt,
		StartedAt:       c.StartedAt,
		EndedAt:         c.EndedAt,
		UpdatedAt:       time.Now(),
	}
}

func callFromRecord(r models.CallRecord) calls.Call {
	return calls.Call{
		ID:          r.ID,
		Version:     r.Version,
		Purpose:     r.Purpose,
		Description: r.Description,
		Status:      calls.Status(r.Status),
		VisitorID:   r.VisitorConnID,
		Visitor:     models.Identity{Name: r.VisitorName, Email: r.VisitorEmail},
		StaffID:     r.StaffConnID,
		Staff: models.Identity{
			UserID:     r.StaffUserID,
			Name:       r.StaffName,
			Department: r.StaffDepartment,
		},
		CreatedAt: r.CreatedAt,
		StartedAt: r.StartedAt,
		EndedAt:   r.EndedAt,
		Decision:  calls.Decision(r.Decision),
		Notes:     r.Notes,
		EndReason: r.EndReason,
		Duration:  time.Duration(r.DurationMillis) * time.Millisecond,
	}
}
