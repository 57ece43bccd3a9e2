package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-api/internal/models"
)

// ErrExamConflict indicates a conditional write lost the race against another writer.
var ErrExamConflict = errors.New("exam was modified concurrently")

// ExamRevision identifies the exact stored state a conditional write expects to replace.
type ExamRevision struct {
	Status  models.ExamStatus
	Version uint
}

// RevisionOf captures the revision of a loaded exam.
func RevisionOf(exam models.Exam) ExamRevision {
	return ExamRevision{Status: exam.Status, Version: exam.Version}
}

// ExamFilter describes pagination & filtering options for exams.
type ExamFilter struct {
	SchoolID uint
	Status   models.ExamStatus
	Search   string
	Sort     string
	Page     int
	PageSize int
}

// ExamRepository is the exam record store.
type ExamRepository interface {
	Create(ctx context.Context, exam *models.Exam) error
	GetByID(ctx context.Context, id uint) (models.Exam, error)
	List(ctx context.Context, filter ExamFilter) ([]models.Exam, int64, error)
	CompareAndSwap(ctx context.Context, id uint, expected ExamRevision, next models.Exam) (models.Exam, error)
	DeleteIfUnattempted(ctx context.Context, id uint, expected ExamRevision) error
	IncrementAttempts(ctx context.Context, id uint) (models.Exam, error)
}

type examRepository struct {
	db *gorm.DB
}

// NewExamRepository instantiates a GORM-backed exam store.
func NewExamRepository(db *gorm.DB) ExamRepository {
	return &examRepository{db: db}
}

func (r *examRepository) Create(ctx context.Context, exam *models.Exam) error {
	if exam.Version == 0 {
		exam.Version = 1
	}
	return r.db.WithContext(ctx).Create(exam).Error
}

func (r *examRepository) GetByID(ctx context.Context, id uint) (models.Exam, error) {
	var exam models.Exam
	if err := r.db.WithContext(ctx).First(&exam, id).Error; err != nil {
		return models.Exam{}, err
	}
	return exam, nil
}

func (r *examRepository) List(ctx context.Context, filter ExamFilter) ([]models.Exam, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Exam{})

	if filter.SchoolID > 0 {
		query = query.Where("school_id = ?", filter.SchoolID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(strings.TrimSpace(filter.Search)) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(subject) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order(normalizeExamSort(filter.Sort))

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var exams []models.Exam
	if err := query.Find(&exams).Error; err != nil {
		return nil, 0, err
	}

	return exams, total, nil
}

// CompareAndSwap writes the lifecycle fields of next only if the stored exam
// still matches expected. students_attempted is never written here.
func (r *examRepository) CompareAndSwap(ctx context.Context, id uint, expected ExamRevision, next models.Exam) (models.Exam, error) {
	updates := map[string]interface{}{
		"status":           next.Status,
		"manual_control":   next.ManualControl,
		"is_live":          next.IsLive,
		"is_completed":     next.IsCompleted,
		"rejection_reason": next.RejectionReason,
		"approver_id":      next.ApproverID,
		"version":          gorm.Expr("version + 1"),
	}

	result := r.db.WithContext(ctx).
		Model(&models.Exam{}).
		Where("id = ? AND status = ? AND version = ?", id, expected.Status, expected.Version).
		Updates(updates)
	if result.Error != nil {
		return models.Exam{}, result.Error
	}
	if result.RowsAffected == 0 {
		if err := r.ensureExists(ctx, id); err != nil {
			return models.Exam{}, err
		}
		return models.Exam{}, ErrExamConflict
	}

	return r.GetByID(ctx, id)
}

// DeleteIfUnattempted removes the exam only while it is a draft or rejected,
// no student has attempted it and its revision is unchanged.
func (r *examRepository) DeleteIfUnattempted(ctx context.Context, id uint, expected ExamRevision) error {
	deletable := []string{string(models.ExamStatusDraft), string(models.ExamStatusRejected)}

	result := r.db.WithContext(ctx).
		Where("id = ? AND status = ? AND version = ?", id, expected.Status, expected.Version).
		Where("status IN ? AND students_attempted = 0", deletable).
		Delete(&models.Exam{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if err := r.ensureExists(ctx, id); err != nil {
			return err
		}
		return ErrExamConflict
	}
	return nil
}

// IncrementAttempts records a started attempt. The version is left alone so
// attempts never race with lifecycle transitions.
func (r *examRepository) IncrementAttempts(ctx context.Context, id uint) (models.Exam, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Exam{}).
		Where("id = ?", id).
		UpdateColumn("students_attempted", gorm.Expr("students_attempted + 1"))
	if result.Error != nil {
		return models.Exam{}, result.Error
	}
	if result.RowsAffected == 0 {
		return models.Exam{}, gorm.ErrRecordNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *examRepository) ensureExists(ctx context.Context, id uint) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Exam{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func normalizeExamSort(sort string) string {
	switch strings.ToLower(strings.TrimSpace(sort)) {
	case "-start_time", "start_time:desc", "start_time.desc":
		return "start_time DESC"
	case "title", "title:asc", "title.asc":
		return "title ASC"
	case "-title", "title:desc", "title.desc":
		return "title DESC"
	case "updated_at", "updated_at:asc", "updated_at.asc":
		return "updated_at ASC"
	case "-updated_at", "updated_at:desc", "updated_at.desc":
		return "updated_at DESC"
	default:
		return "start_time ASC"
	}
}
