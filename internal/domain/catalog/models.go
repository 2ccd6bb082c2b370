package catalog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/coursecatalog-backend/internal/domain/lifecycle"
)

// Lifecycle is the status block every hierarchical entity carries. The
// timestamps record the first entry into each state and are never cleared.
type Lifecycle struct {
	Status        lifecycle.Status `gorm:"column:status;type:varchar(16);not null;default:'draft';index" json:"status"`
	PublishedAt   *time.Time       `gorm:"column:published_at" json:"published_at,omitempty"`
	InactivatedAt *time.Time       `gorm:"column:inactivated_at" json:"inactivated_at,omitempty"`
	ArchivedAt    *time.Time       `gorm:"column:archived_at" json:"archived_at,omitempty"`
}

// Enter moves to s and stamps the matching timestamp if it was never set.
func (l *Lifecycle) Enter(s lifecycle.Status, now time.Time) {
	l.Status = s
	switch s {
	case lifecycle.StatusPublished:
		if l.PublishedAt == nil {
			l.PublishedAt = &now
		}
	case lifecycle.StatusInactive:
		if l.InactivatedAt == nil {
			l.InactivatedAt = &now
		}
	case lifecycle.StatusArchived:
		if l.ArchivedAt == nil {
			l.ArchivedAt = &now
		}
	}
}

// Node holds the columns shared by every level.
type Node struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string    `gorm:"column:title;not null" json:"title"`
	Slug        string    `gorm:"column:slug;not null;uniqueIndex" json:"slug"`
	Description string    `gorm:"column:description;type:text" json:"description,omitempty"`
	Position    int       `gorm:"column:position;not null;index" json:"position"`

	Lifecycle

	DeletionBatchID *uuid.UUID     `gorm:"type:uuid;column:deletion_batch_id;index" json:"deletion_batch_id,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;index" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (n *Node) Base() *Node { return n }

// BeforeCreate assigns ids in Go so every dialect behaves the same.
func (n *Node) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Status == "" {
		n.Status = lifecycle.StatusDraft
	}
	return nil
}

// Entity is implemented by every hierarchical model.
type Entity interface {
	Base() *Node
	ParentRef() *uuid.UUID
	SetParentRef(id *uuid.UUID)
	TableName() string
}

type Category struct {
	Node
	IconURL string `gorm:"column:icon_url" json:"icon_url,omitempty"`
}

func (Category) TableName() string        { return "category" }
func (*Category) ParentRef() *uuid.UUID   { return nil }
func (*Category) SetParentRef(*uuid.UUID) {}

type Course struct {
	Node
	CategoryID *uuid.UUID `gorm:"type:uuid;column:category_id;index" json:"category_id,omitempty"`
	Level      string     `gorm:"column:level" json:"level,omitempty"`
	Language   string     `gorm:"column:language" json:"language,omitempty"`
}

func (Course) TableName() string             { return "course" }
func (c *Course) ParentRef() *uuid.UUID      { return c.CategoryID }
func (c *Course) SetParentRef(id *uuid.UUID) { c.CategoryID = id }

type Chapter struct {
	Node
	CourseID *uuid.UUID `gorm:"type:uuid;column:course_id;index" json:"course_id,omitempty"`
}

func (Chapter) TableName() string             { return "chapter" }
func (c *Chapter) ParentRef() *uuid.UUID      { return c.CourseID }
func (c *Chapter) SetParentRef(id *uuid.UUID) { c.CourseID = id }

type Lesson struct {
	Node
	ChapterID       *uuid.UUID `gorm:"type:uuid;column:chapter_id;index" json:"chapter_id,omitempty"`
	Type            LessonType `gorm:"column:type;type:varchar(16);not null;default:'content'" json:"type"`
	DurationMinutes int        `gorm:"column:duration_minutes;not null;default:0" json:"duration_minutes"`
}

func (Lesson) TableName() string             { return "lesson" }
func (l *Lesson) ParentRef() *uuid.UUID      { return l.ChapterID }
func (l *Lesson) SetParentRef(id *uuid.UUID) { l.ChapterID = id }

type ResourceLibrary struct {
	Node
}

func (ResourceLibrary) TableName() string        { return "resource_library" }
func (*ResourceLibrary) ParentRef() *uuid.UUID   { return nil }
func (*ResourceLibrary) SetParentRef(*uuid.UUID) {}

type Resource struct {
	Node
	LibraryID *uuid.UUID `gorm:"type:uuid;column:library_id;index" json:"library_id,omitempty"`
	URL       string     `gorm:"column:url" json:"url,omitempty"`
	Kind      string     `gorm:"column:kind" json:"kind,omitempty"`
}

func (Resource) TableName() string             { return "resource" }
func (r *Resource) ParentRef() *uuid.UUID      { return r.LibraryID }
func (r *Resource) SetParentRef(id *uuid.UUID) { r.LibraryID = id }

// NewEntity returns an empty model for level, or nil for an unknown level.
func NewEntity(level Level) Entity {
	switch level {
	case LevelCategory:
		return &Category{}
	case LevelCourse:
		return &Course{}
	case LevelChapter:
		return &Chapter{}
	case LevelLesson:
		return &Lesson{}
	case LevelResourceLibrary:
		return &ResourceLibrary{}
	case LevelResource:
		return &Resource{}
	}
	return nil
}
