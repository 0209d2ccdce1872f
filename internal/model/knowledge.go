package model

import "time"

// KnowledgeCategoryFAQ is the category used for fixed-topic FAQ answers.
const KnowledgeCategoryFAQ = "faq"

// KnowledgeEntry is a tenant-scoped piece of reference content.
type KnowledgeEntry struct {
	ID        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	TenantID  string    `json:"tenant_id" gorm:"type:varchar(36);index:idx_kb_lookup,priority:1;not null"`
	Category  string    `json:"category" gorm:"type:varchar(64);index:idx_kb_lookup,priority:2"`
	Title     string    `json:"title" gorm:"type:varchar(255);index:idx_kb_lookup,priority:3"`
	Content   string    `json:"content" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName implements the GORM tabler interface.
func (KnowledgeEntry) TableName() string { return "knowledge_entries" }
