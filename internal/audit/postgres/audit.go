package postgres

import (
	"context"
	"encoding/json"

	"github.com/frahmantamala/authz/internal/audit"
	auditDatamodel "github.com/frahmantamala/authz/internal/core/datamodel/audit"
	"gorm.io/gorm"
)

const defaultListLimit = 100

// AuditRepository implements the append-only audit store. Rows are
// inserted in one transaction per batch and never updated or deleted.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) audit.RepositoryAPI {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) AppendBatch(ctx context.Context, records []audit.Record) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]auditDatamodel.Record, 0, len(records))
	for _, record := range records {
		details := ""
		if record.Details != nil {
			raw, err := json.Marshal(record.Details)
			if err != nil {
				return err
			}
			details = string(raw)
		}

		rows = append(rows, auditDatamodel.Record{
			ID:            record.ID,
			ActorUserID:   record.ActorUserID,
			Action:        record.Action,
			ResourceType:  record.ResourceType,
			ResourceID:    record.ResourceID,
			Details:       details,
			OriginAddress: record.OriginAddress,
			OriginAgent:   record.OriginAgent,
			CreatedAt:     record.Timestamp,
		})
	}

	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *AuditRepository) List(ctx context.Context, filter audit.ListFilter) ([]audit.Record, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := r.db.WithContext(ctx).Model(&auditDatamodel.Record{}).Order("created_at DESC").Limit(limit)
	if filter.ActorUserID != "" {
		query = query.Where("user_id = ?", filter.ActorUserID)
	}
	if filter.ResourceType != "" {
		query = query.Where("resource_type = ?", filter.ResourceType)
	}

	var rows []auditDatamodel.Record
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]audit.Record, 0, len(rows))
	for _, row := range rows {
		record := audit.Record{
			ID:            row.ID,
			ActorUserID:   row.ActorUserID,
			Action:        row.Action,
			ResourceType:  row.ResourceType,
			ResourceID:    row.ResourceID,
			OriginAddress: row.OriginAddress,
			OriginAgent:   row.OriginAgent,
			Timestamp:     row.CreatedAt,
		}
		if row.Details != "" {
			var details map[string]interface{}
			if err := json.Unmarshal([]byte(row.Details), &details); err == nil {
				record.Details = details
			}
		}
		records = append(records, record)
	}
	return records, nil
}
