package store

import (
	"context"
	"testing"

	"github.com/AutoSenseAI/autosense/engine/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	dtcs := []domain.DiagnosticDocument{
		{Type: domain.DocTypeDTC, Code: "P0420", Category: "Engine", Description: "Catalyst System Efficiency Below Threshold"},
		{Type: domain.DocTypeDTC, Code: "P0300", Category: "Engine", Description: "Random/Multiple Cylinder Misfire Detected"},
	}
	recalls := []domain.DiagnosticDocument{
		{Type: domain.DocTypeRecall, RecallID: "24V-001", VIN: "2HGFC2F59JH000001", Date: "2024-01-15", Summary: "Fuel pump may fail"},
		{Type: domain.DocTypeRecall, RecallID: "23V-777", VIN: "2HGFC2F59JH000001", Date: "2023-06-02", Summary: "Airbag inflator rupture"},
		{Type: domain.DocTypeRecall, RecallID: "24V-002", VIN: "1FTFW1ET5DFC00002", Date: "2024-03-20", Summary: "Brake hose wear"},
	}
	if err := s.UpsertDTCs(ctx, dtcs); err != nil {
		t.Fatalf("upsert dtcs: %v", err)
	}
	if err := s.UpsertRecalls(ctx, recalls); err != nil {
		t.Fatalf("upsert recalls: %v", err)
	}
}

func TestGetDTC(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	ctx := context.Background()

	doc, err := s.GetDTC(ctx, "P0420")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc == nil || doc.Description != "Catalyst System Efficiency Below Threshold" {
		t.Fatalf("got %+v", doc)
	}

	doc, err = s.GetDTC(ctx, "P9999")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if doc != nil {
		t.Fatalf("expected nil for unknown code, got %+v", doc)
	}
}

func TestUpsertDTCs_Replace(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	ctx := context.Background()

	update := []domain.DiagnosticDocument{
		{Type: domain.DocTypeDTC, Code: "P0420", Category: "Powertrain", Description: "Updated description"},
	}
	if err := s.UpsertDTCs(ctx, update); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	doc, err := s.GetDTC(ctx, "P0420")
	if err != nil || doc == nil {
		t.Fatalf("get: %v %v", doc, err)
	}
	if doc.Category != "Powertrain" || doc.Description != "Updated description" {
		t.Fatalf("upsert did not replace: %+v", doc)
	}

	dtcs, _, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if dtcs != 2 {
		t.Fatalf("dtc count = %d, want 2", dtcs)
	}
}

func TestUpsert_RejectsWrongType(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.UpsertDTCs(ctx, []domain.DiagnosticDocument{{Type: domain.DocTypeRecall, RecallID: "x"}})
	if err == nil {
		t.Fatal("expected error for recall in dtc upsert")
	}
	err = s.UpsertRecalls(ctx, []domain.DiagnosticDocument{{Type: domain.DocTypeDTC, Code: "P0001"}})
	if err == nil {
		t.Fatal("expected error for dtc in recall upsert")
	}
}

func TestGetRecalls_OrderAndScope(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)

	recalls, err := s.GetRecalls(context.Background(), "2HGFC2F59JH000001")
	if err != nil {
		t.Fatalf("get recalls: %v", err)
	}
	if len(recalls) != 2 {
		t.Fatalf("got %d recalls, want 2", len(recalls))
	}
	// Most recent first.
	if recalls[0].RecallID != "24V-001" || recalls[1].RecallID != "23V-777" {
		t.Fatalf("wrong order: %+v", recalls)
	}

	recalls, err = s.GetRecalls(context.Background(), "JH4KA7561PC000000")
	if err != nil {
		t.Fatalf("get recalls for unknown vin: %v", err)
	}
	if len(recalls) != 0 {
		t.Fatalf("expected none, got %+v", recalls)
	}
}

func TestListDocuments(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)

	docs, err := s.ListDocuments(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 5 {
		t.Fatalf("got %d documents, want 5", len(docs))
	}
	// Trouble codes first, each group in stable order.
	if docs[0].Code != "P0300" || docs[1].Code != "P0420" {
		t.Fatalf("dtc ordering wrong: %+v", docs[:2])
	}
	if docs[2].Type != domain.DocTypeRecall {
		t.Fatalf("expected recalls after dtcs: %+v", docs[2])
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	s := openTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
