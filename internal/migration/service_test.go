/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package migration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/botdeckhq/botdeck/internal/events"
)

type fakeImporter struct {
	validateErr error
	importErr   error
	result      *Result
	ran         chan struct{}
}

func (f *fakeImporter) Validate(context.Context, Options) error {
	return f.validateErr
}

func (f *fakeImporter) Import(_ context.Context, _ Options, progress ProgressCallback) (*Result, error) {
	if progress != nil {
		progress(Progress{Phase: "working", CompletedSteps: 1, TotalSteps: 2})
	}
	if f.ran != nil {
		close(f.ran)
	}
	if f.importErr != nil {
		return nil, f.importErr
	}
	return f.result, nil
}

func newMigrationTestService(t *testing.T) *Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Job{}); err != nil {
		t.Fatalf("migrate jobs: %v", err)
	}
	return NewService(db, events.NewBus(), zerolog.Nop())
}

func waitForStatus(t *testing.T, svc *Service, jobID string, want JobStatus) *Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := svc.GetJob(context.Background(), jobID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", jobID, want)
	return nil
}

func TestCreateJobRequiresRegisteredImporter(t *testing.T) {
	svc := newMigrationTestService(t)

	if _, err := svc.CreateJob(context.Background(), SourceTypeLegacyDashboard, Options{}); err == nil {
		t.Fatal("expected error for unregistered source type")
	}
}

func TestCreateJobValidatesOptions(t *testing.T) {
	svc := newMigrationTestService(t)
	svc.RegisterImporter(SourceTypeLegacyDashboard, &fakeImporter{validateErr: errors.New("missing host")})

	if _, err := svc.CreateJob(context.Background(), SourceTypeLegacyDashboard, Options{}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestJobRunsToCompletion(t *testing.T) {
	svc := newMigrationTestService(t)
	importer := &fakeImporter{
		result: &Result{ChannelsCreated: 3, RulesCreated: 5},
		ran:    make(chan struct{}),
	}
	svc.RegisterImporter(SourceTypeLegacyDashboard, importer)

	job, err := svc.CreateJob(context.Background(), SourceTypeLegacyDashboard, Options{})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if job.Status != JobStatusPending {
		t.Fatalf("status = %s, want pending", job.Status)
	}

	if err := svc.StartJob(context.Background(), job.ID); err != nil {
		t.Fatalf("start job: %v", err)
	}

	select {
	case <-importer.ran:
	case <-time.After(5 * time.Second):
		t.Fatal("importer never ran")
	}

	done := waitForStatus(t, svc, job.ID, JobStatusCompleted)
	if done.Result == nil || done.Result.ChannelsCreated != 3 || done.Result.RulesCreated != 5 {
		t.Fatalf("result = %+v", done.Result)
	}
	if done.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
}

func TestJobRecordsFailure(t *testing.T) {
	svc := newMigrationTestService(t)
	svc.RegisterImporter(SourceTypeLegacyDashboard, &fakeImporter{importErr: errors.New("connection refused")})

	job, err := svc.CreateJob(context.Background(), SourceTypeLegacyDashboard, Options{})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := svc.StartJob(context.Background(), job.ID); err != nil {
		t.Fatalf("start job: %v", err)
	}

	failed := waitForStatus(t, svc, job.ID, JobStatusFailed)
	if failed.Error != "connection refused" {
		t.Fatalf("error = %q", failed.Error)
	}
}

func TestStartJobRejectsNonPending(t *testing.T) {
	svc := newMigrationTestService(t)
	importer := &fakeImporter{result: &Result{}}
	svc.RegisterImporter(SourceTypeLegacyDashboard, importer)

	job, err := svc.CreateJob(context.Background(), SourceTypeLegacyDashboard, Options{})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := svc.StartJob(context.Background(), job.ID); err != nil {
		t.Fatalf("start job: %v", err)
	}
	waitForStatus(t, svc, job.ID, JobStatusCompleted)

	if err := svc.StartJob(context.Background(), job.ID); err == nil {
		t.Fatal("expected error starting a completed job")
	}
}

func TestRecoverStaleJobs(t *testing.T) {
	svc := newMigrationTestService(t)

	stale := &Job{ID: "stale-1", SourceType: SourceTypeLegacyDashboard, Status: JobStatusRunning}
	if err := svc.db.Create(stale).Error; err != nil {
		t.Fatalf("seed stale job: %v", err)
	}

	if err := svc.RecoverStaleJobs(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}

	recovered, err := svc.GetJob(context.Background(), "stale-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if recovered.Status != JobStatusFailed {
		t.Fatalf("status = %s, want failed", recovered.Status)
	}
	if recovered.Error == "" {
		t.Fatal("expected error message on recovered job")
	}
}
