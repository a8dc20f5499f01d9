package audit

import "time"

// Record is an append-only audit row. Application logic never updates
// or deletes rows in this table.
type Record struct {
	ID            string    `gorm:"primaryKey;type:uuid"`
	ActorUserID   *string   `gorm:"column:user_id;type:uuid"`
	Action        string    `gorm:"column:action;not null"`
	ResourceType  string    `gorm:"column:resource_type"`
	ResourceID    string    `gorm:"column:resource_id"`
	Details       string    `gorm:"column:details"`
	OriginAddress string    `gorm:"column:ip_address"`
	OriginAgent   string    `gorm:"column:user_agent"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Record) TableName() string { return "audit_logs" }
