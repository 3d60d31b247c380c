package ingest

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/hitoshi/cleanroom/internal/model"
)

// mockSegmentRepo はSegmentRepositoryのモック実装。
type mockSegmentRepo struct {
	appendCalls int
	lastA       []*model.IdentifierRecord
	lastB       []*model.IdentifierRecord
	appendErr   error
}

func (m *mockSegmentRepo) ListIdentifiers(context.Context, model.SegmentName) ([]*model.IdentifierRecord, error) {
	return nil, nil
}

func (m *mockSegmentRepo) AppendIdentifiers(_ context.Context, a, b []*model.IdentifierRecord) error {
	m.appendCalls++
	m.lastA = a
	m.lastB = b
	return m.appendErr
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func TestService_Refresh_AppendsGeneratedBatch(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockSegmentRepo{}
	svc := NewService(repo, newTestGenerator(11, 10), newTestLogger(&buf))

	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}

	if repo.appendCalls != 1 {
		t.Errorf("AppendIdentifiers calls = %d, want 1", repo.appendCalls)
	}
	if len(repo.lastA) != 10 || len(repo.lastB) != 10 {
		t.Errorf("appended (%d, %d) records, want (10, 10)", len(repo.lastA), len(repo.lastB))
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"trigger":"refresh"`)) {
		t.Errorf("expected refresh log entry, got %s", buf.String())
	}
}

func TestService_Seed_AppendsGeneratedBatch(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockSegmentRepo{}
	svc := NewService(repo, newTestGenerator(12, 3), newTestLogger(&buf))

	if err := svc.Seed(context.Background()); err != nil {
		t.Fatalf("Seed returned error: %v", err)
	}

	if repo.appendCalls != 1 {
		t.Errorf("AppendIdentifiers calls = %d, want 1", repo.appendCalls)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"trigger":"seed"`)) {
		t.Errorf("expected seed log entry, got %s", buf.String())
	}
}

func TestService_Refresh_PropagatesStorageError(t *testing.T) {
	var buf bytes.Buffer
	storageErr := model.StorageError("failed to begin transaction", errors.New("connection refused"))
	repo := &mockSegmentRepo{appendErr: storageErr}
	svc := NewService(repo, newTestGenerator(13, 2), newTestLogger(&buf))

	err := svc.Refresh(context.Background())
	if !errors.Is(err, model.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("identifier ingestion failed")) {
		t.Errorf("expected error log, got %s", buf.String())
	}
}

func TestService_Load_AppendsGivenRecords(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockSegmentRepo{}
	svc := NewService(repo, newTestGenerator(14, 10), newTestLogger(&buf))

	a := []*model.IdentifierRecord{{RawIdentifier: "x@example.com", HashedIdentifier: "hx", AttributeTag: "tech"}}
	b := []*model.IdentifierRecord{}

	if err := svc.Load(context.Background(), a, b); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if repo.appendCalls != 1 {
		t.Errorf("AppendIdentifiers calls = %d, want 1", repo.appendCalls)
	}
	if len(repo.lastA) != 1 || repo.lastA[0] != a[0] || len(repo.lastB) != 0 {
		t.Errorf("appended (%d, %d) records, want the loaded records", len(repo.lastA), len(repo.lastB))
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"trigger":"load"`)) {
		t.Errorf("expected load log entry, got %s", buf.String())
	}
}
