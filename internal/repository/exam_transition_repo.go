package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-api/internal/models"
)

// ExamTransitionRepository persists the lifecycle history of exams.
type ExamTransitionRepository interface {
	Create(ctx context.Context, transition *models.ExamTransition) error
	ListByExam(ctx context.Context, examID uint) ([]models.ExamTransition, error)
}

type examTransitionRepository struct {
	db *gorm.DB
}

// NewExamTransitionRepository constructs the transition history repository.
func NewExamTransitionRepository(db *gorm.DB) ExamTransitionRepository {
	return &examTransitionRepository{db: db}
}

func (r *examTransitionRepository) Create(ctx context.Context, transition *models.ExamTransition) error {
	return r.db.WithContext(ctx).Create(transition).Error
}

func (r *examTransitionRepository) ListByExam(ctx context.Context, examID uint) ([]models.ExamTransition, error) {
	var transitions []models.ExamTransition
	if err := r.db.WithContext(ctx).
		Where("exam_id = ?", examID).
		Order("version ASC, id ASC").
		Find(&transitions).Error; err != nil {
		return nil, err
	}
	return transitions, nil
}
