package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LessonType selects which payload table backs a lesson.
type LessonType string

const (
	LessonTypeContent    LessonType = "content"
	LessonTypeAssignment LessonType = "assignment"
	LessonTypeQuiz       LessonType = "quiz"
	LessonTypePdf        LessonType = "pdf"
)

var LessonTypes = []LessonType{LessonTypeContent, LessonTypeAssignment, LessonTypeQuiz, LessonTypePdf}

func ParseLessonType(raw string) (LessonType, error) {
	t := LessonType(strings.ToLower(strings.TrimSpace(raw)))
	if t == "" {
		return LessonTypeContent, nil
	}
	for _, known := range LessonTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown lesson type %q", raw)
}

// Payload is implemented by every lesson payload model.
type Payload interface {
	PayloadBase() *PayloadRow
	TableName() string
}

// PayloadRow holds the columns shared by lesson payload tables.
type PayloadRow struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	LessonID        uuid.UUID      `gorm:"type:uuid;column:lesson_id;not null;uniqueIndex" json:"lesson_id"`
	DeletionBatchID *uuid.UUID     `gorm:"type:uuid;column:deletion_batch_id;index" json:"deletion_batch_id,omitempty"`
	CreatedAt       time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (p *PayloadRow) PayloadBase() *PayloadRow { return p }

func (p *PayloadRow) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

type LessonContent struct {
	PayloadRow
	Format string `gorm:"column:format;not null;default:'markdown'" json:"format"`
	Body   string `gorm:"column:body;type:text" json:"body"`
}

func (LessonContent) TableName() string { return "lesson_content" }

type LessonAssignment struct {
	PayloadRow
	Instructions string `gorm:"column:instructions;type:text" json:"instructions"`
	MaxScore     int    `gorm:"column:max_score;not null;default:100" json:"max_score"`
	DueInDays    int    `gorm:"column:due_in_days;not null;default:0" json:"due_in_days"`
}

func (LessonAssignment) TableName() string { return "lesson_assignment" }

// QuizQuestion is one entry of LessonQuiz.Questions.
type QuizQuestion struct {
	Prompt  string   `json:"prompt" validate:"required"`
	Options []string `json:"options" validate:"min=2,dive,required"`
	Answer  int      `json:"answer" validate:"gte=0"`
}

type LessonQuiz struct {
	PayloadRow
	Questions    datatypes.JSON `gorm:"column:questions;not null" json:"questions"`
	PassingScore int            `gorm:"column:passing_score;not null;default:70" json:"passing_score"`
}

func (LessonQuiz) TableName() string { return "lesson_quiz" }

type LessonPdf struct {
	PayloadRow
	StorageKey  string `gorm:"column:storage_key" json:"storage_key,omitempty"`
	FileName    string `gorm:"column:file_name" json:"file_name,omitempty"`
	ContentType string `gorm:"column:content_type" json:"content_type,omitempty"`
	SizeBytes   int64  `gorm:"column:size_bytes;not null;default:0" json:"size_bytes"`
}

func (LessonPdf) TableName() string { return "lesson_pdf" }

// AllModels lists every table for migrations.
func AllModels() []any {
	return []any{
		&Category{},
		&Course{},
		&Chapter{},
		&Lesson{},
		&ResourceLibrary{},
		&Resource{},
		&LessonContent{},
		&LessonAssignment{},
		&LessonQuiz{},
		&LessonPdf{},
		&DeletionBatch{},
	}
}
