package db

// Table names.
const (
	RecordTable = "ingested_record"
	JobTable    = "ingest_job"
)

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- INGESTED RECORDS
    -- ==========================================================================
    -- Record ids are UUIDv7 strings assigned on insert, so ORDER BY id is
    -- insertion order. Records are never updated in place.
    DEFINE TABLE IF NOT EXISTS ingested_record SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS source ON ingested_record TYPE string;
    DEFINE FIELD IF NOT EXISTS datasetId ON ingested_record TYPE string;
    DEFINE FIELD IF NOT EXISTS payload ON ingested_record TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS ingestionDate ON ingested_record TYPE datetime;

    -- Dataset replace deletes by (source, datasetId); identity filters hit the same index.
    DEFINE INDEX IF NOT EXISTS ingested_record_dataset ON ingested_record FIELDS source, datasetId;

    -- ==========================================================================
    -- INGESTION JOB HISTORY
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS ingest_job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS dataset_id ON ingest_job TYPE string;
    DEFINE FIELD IF NOT EXISTS source ON ingest_job TYPE string;
    DEFINE FIELD IF NOT EXISTS trigger ON ingest_job TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON ingest_job TYPE string;
    DEFINE FIELD IF NOT EXISTS records ON ingest_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS batches ON ingest_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS deleted ON ingest_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS bytes_read ON ingest_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS error ON ingest_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS started_at ON ingest_job TYPE datetime;
    DEFINE FIELD IF NOT EXISTS completed_at ON ingest_job TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS ingest_job_started ON ingest_job FIELDS started_at;
    DEFINE INDEX IF NOT EXISTS ingest_job_dataset ON ingest_job FIELDS dataset_id;
`
