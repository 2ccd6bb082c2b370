package catalog

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DeletionBatch records one soft-delete cascade so restore can bring back
// exactly the rows it took down.
type DeletionBatch struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RootLevel Level          `gorm:"column:root_level;type:varchar(32);not null" json:"root_level"`
	RootID    uuid.UUID      `gorm:"type:uuid;column:root_id;not null;index" json:"root_id"`
	Items     datatypes.JSON `gorm:"column:items;not null" json:"items"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
}

func (DeletionBatch) TableName() string { return "deletion_batch" }

func (b *DeletionBatch) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// BatchItems partitions cascaded ids by plural label ("lessons", "contents").
type BatchItems map[string][]uuid.UUID

func (b BatchItems) Add(key string, ids ...uuid.UUID) {
	if len(ids) == 0 {
		return
	}
	b[key] = append(b[key], ids...)
}

// Counts reports how many ids each partition holds.
func (b BatchItems) Counts() map[string]int {
	out := make(map[string]int, len(b))
	for k, v := range b {
		if len(v) > 0 {
			out[k] = len(v)
		}
	}
	return out
}

func (b BatchItems) JSON() (datatypes.JSON, error) {
	if b == nil {
		b = BatchItems{}
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func (b *DeletionBatch) DecodeItems() (BatchItems, error) {
	out := BatchItems{}
	if len(b.Items) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b.Items, &out); err != nil {
		return nil, err
	}
	return out, nil
}
