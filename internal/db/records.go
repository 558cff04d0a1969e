package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/warydiaz/json-ingestion-platform/internal/models"
	"github.com/warydiaz/json-ingestion-platform/internal/query"
	"github.com/warydiaz/json-ingestion-platform/internal/store"
)

var _ store.Store = (*Client)(nil)

// recordRow is the stored shape of an ingested record.
type recordRow struct {
	ID            surrealmodels.RecordID `json:"id"`
	Source        string                 `json:"source"`
	DatasetID     string                 `json:"datasetId"`
	Payload       map[string]any         `json:"payload"`
	IngestionDate time.Time              `json:"ingestionDate"`
}

func (r recordRow) model() (models.IngestedRecord, error) {
	id, err := models.RecordIDString(r.ID)
	if err != nil {
		return models.IngestedRecord{}, err
	}
	return models.IngestedRecord{
		ID:            id,
		Source:        r.Source,
		DatasetID:     r.DatasetID,
		Payload:       r.Payload,
		IngestionDate: r.IngestionDate,
	}, nil
}

type countRow struct {
	Count int64 `json:"count"`
}

// InsertMany inserts a batch with fresh UUIDv7 ids in one INSERT statement.
// A statement error rolls back the whole statement, so the batch is then
// retried record by record and only the records that still fail are reported.
func (c *Client) InsertMany(ctx context.Context, records []models.IngestedRecord) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, len(records))
	rows := make([]map[string]any, len(records))
	for i, rec := range records {
		id, err := uuid.NewV7()
		if err != nil {
			return storeError("generate id", err)
		}
		ids[i] = id.String()
		rows[i] = recordContent(rec)
		rows[i]["id"] = surrealmodels.NewRecordID(RecordTable, ids[i])
	}

	err := c.exec(ctx, `INSERT INTO ingested_record $records RETURN NONE`, map[string]any{
		"records": rows,
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return storeError("insert records", err)
	}

	c.logger.Warn("bulk insert failed, inserting records individually", "records", len(records), "error", err)

	bulkErr := &store.BulkInsertError{}
	for i, rec := range records {
		err := c.exec(ctx, `
			CREATE type::record("ingested_record", $id) CONTENT $content RETURN NONE
		`, map[string]any{
			"id":      ids[i],
			"content": recordContent(rec),
		})
		if err != nil {
			if errors.Is(err, ErrRecordAlreadyExists) {
				// Landed in the rejected bulk statement after all.
				bulkErr.Inserted++
				continue
			}
			if bulkErr.First == nil {
				bulkErr.First = err
			}
			bulkErr.Failed++
			continue
		}
		bulkErr.Inserted++
	}

	if bulkErr.Failed > 0 {
		return bulkErr
	}
	return nil
}

func recordContent(rec models.IngestedRecord) map[string]any {
	payload := rec.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	return map[string]any{
		"source":        rec.Source,
		"datasetId":     rec.DatasetID,
		"payload":       payload,
		"ingestionDate": rec.IngestionDate,
	}
}

// FindPage returns up to limit matching records ascending by id.
func (c *Client) FindPage(ctx context.Context, filter query.CompiledFilter, limit int, afterID string) ([]models.IngestedRecord, error) {
	w, err := renderFilter(filter)
	if err != nil {
		return nil, err
	}
	if afterID != "" {
		w.add(fmt.Sprintf(`id > type::record("ingested_record", %s)`, w.bind("after", afterID)))
	}
	w.vars["limit"] = limit

	sql := fmt.Sprintf(`SELECT * FROM ingested_record %s ORDER BY id ASC LIMIT $limit`, w)

	results, err := surrealdb.Query[[]recordRow](ctx, c.db, sql, w.vars)
	if err != nil {
		return nil, storeError("find page", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.IngestedRecord{}, nil
	}

	rows := (*results)[0].Result
	out := make([]models.IngestedRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.model()
		if err != nil {
			return nil, storeError("decode record", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// CountExact counts records matching filter.
func (c *Client) CountExact(ctx context.Context, filter query.CompiledFilter) (int64, error) {
	w, err := renderFilter(filter)
	if err != nil {
		return 0, err
	}
	return c.count(ctx, fmt.Sprintf(`SELECT count() AS count FROM ingested_record %s GROUP ALL`, w), w.vars)
}

// CountApproximate counts the whole table. SurrealDB has no estimated count,
// but an unfiltered GROUP ALL count only scans keys.
func (c *Client) CountApproximate(ctx context.Context) (int64, error) {
	return c.count(ctx, `SELECT count() AS count FROM ingested_record GROUP ALL`, nil)
}

func (c *Client) count(ctx context.Context, sql string, vars map[string]any) (int64, error) {
	results, err := surrealdb.Query[[]countRow](ctx, c.db, sql, vars)
	if err != nil {
		return 0, storeError("count records", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].Count, nil
}

// DeleteWhere removes every record of one dataset. The returned count is
// taken just before the delete statement.
func (c *Client) DeleteWhere(ctx context.Context, source, datasetID string) (int64, error) {
	vars := map[string]any{"source": source, "dataset_id": datasetID}

	n, err := c.count(ctx, `
		SELECT count() AS count FROM ingested_record
		WHERE source = $source AND datasetId = $dataset_id GROUP ALL
	`, vars)
	if err != nil {
		return 0, err
	}

	err = c.exec(ctx, `
		DELETE ingested_record WHERE source = $source AND datasetId = $dataset_id RETURN NONE
	`, vars)
	if err != nil {
		return 0, storeError("delete dataset", err)
	}
	return n, nil
}
