package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
)

func TestNoteRepositorySaveNoteAbsorbsDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewNoteRepository(db)
	// Second save for the same content id conflicts and touches no rows.
	mock.ExpectExec("INSERT INTO notes").
		WithArgs(sqlmock.AnyArg(), "c-1", "ideas", "Title", "Body", []byte(`["go"]`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.SaveNote(context.Background(), "c-1", "ideas", domain.RenderedNote{
		Title: "Title", Body: "Body", Tags: []string{"go"},
	})
	if err != nil {
		t.Fatalf("SaveNote() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNoteRepositoryIsProcessed(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewNoteRepository(db)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("c-2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	processed, err := repo.IsProcessed(context.Background(), "c-2")
	if err != nil {
		t.Fatalf("IsProcessed() error = %v", err)
	}
	if !processed {
		t.Fatalf("expected processed")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestJobRepositoryLoadPendingJobsOrdersByEligibility(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewJobRepository(db)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "kind", "content_id", "payload", "attempts", "max_attempts", "eligible_at", "submitted_at"}).
		AddRow("j-1", "transcribe", "c-1", []byte(`{"storage_key":"k"}`), 1, 3, now, now).
		AddRow("j-2", "fetch_link_metadata", "c-2", []byte(`{"url":"u"}`), 0, 3, now.Add(time.Second), now)

	mock.ExpectQuery("FROM jobs").
		WithArgs(string(domain.JobStatusPending)).
		WillReturnRows(rows)

	jobs, err := repo.LoadPendingJobs(context.Background())
	if err != nil {
		t.Fatalf("LoadPendingJobs() error = %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].Kind != domain.JobKindTranscribe || jobs[0].Attempts != 1 {
		t.Fatalf("first job = %+v", jobs[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestJobRepositoryMarkTerminalReturnsErrorWhenNoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewJobRepository(db)
	mock.ExpectExec("UPDATE jobs").
		WithArgs("missing", string(domain.JobStatusDead), "exhausted", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.MarkTerminal(context.Background(), "missing", domain.JobStatusDead, "exhausted")
	if err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTopicRepositoryListTopics(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewTopicRepository(db)
	rows := sqlmock.NewRows([]string{"id", "title", "description", "format_policy", "active"}).
		AddRow("books", "Books", "Reading list", "", true).
		AddRow("ideas", "Ideas", "", "bullet list", false)

	mock.ExpectQuery("FROM topics").WillReturnRows(rows)

	topics, err := repo.ListTopics(context.Background())
	if err != nil {
		t.Fatalf("ListTopics() error = %v", err)
	}
	if len(topics) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(topics))
	}
	if topics[1].Active {
		t.Fatalf("expected second topic inactive")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
