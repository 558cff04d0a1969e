package models

import (
	"testing"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

func TestRecordIDString(t *testing.T) {
	got, err := RecordIDString(surrealmodels.NewRecordID("ingested_record", "0190a5b2-7c1e-7000-8000-000000000001"))
	if err != nil {
		t.Fatalf("RecordIDString failed: %v", err)
	}
	if got != "0190a5b2-7c1e-7000-8000-000000000001" {
		t.Errorf("RecordIDString = %q", got)
	}

	if _, err := RecordIDString(surrealmodels.NewRecordID("ingested_record", 42)); err == nil {
		t.Error("expected error for numeric record id")
	}
}

func TestJobRunContentOmitsUnsetOptionals(t *testing.T) {
	run := JobRun{DatasetID: "hotels", Status: "running"}
	content := run.Content()
	if _, ok := content["error"]; ok {
		t.Error("error should be omitted when nil")
	}
	if _, ok := content["completed_at"]; ok {
		t.Error("completed_at should be omitted when nil")
	}

	msg := "boom"
	run.Error = &msg
	if got := run.Content()["error"]; got != "boom" {
		t.Errorf("error = %v, want boom", got)
	}
}
