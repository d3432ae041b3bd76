package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/tmx/internal/models"
	"github.com/desertthunder/tmx/internal/shared"
)

func TestBackupExporter(t *testing.T) {
	ctx := context.Background()

	t.Run("exports every category", func(t *testing.T) {
		platform, src, dst := setupPlatform()
		seedTagsAndContacts(src, 3, 10)
		src.Add(models.CategoryAppointments, map[string]any{"title": "last year", "past": true})
		src.Add(models.CategoryForms, map[string]any{"name": "intake", "submissions": []string{"s1"}})

		progress := make(chan ProgressUpdate, 64)
		snapshot, err := NewBackupExporter(platform, testSettings(), testLogger()).Export(ctx, sourceCreds, progress)
		close(progress)
		if err != nil {
			t.Fatalf("Export failed: %v", err)
		}

		if snapshot.RecordCount(models.CategoryContacts) != 10 || snapshot.Counts[models.CategoryContacts] != 10 {
			t.Errorf("expected 10 contacts, got %d", snapshot.RecordCount(models.CategoryContacts))
		}
		if len(snapshot.Categories) != len(models.Catalog()) {
			t.Errorf("expected every category in the snapshot, got %d", len(snapshot.Categories))
		}
		if snapshot.RecordCount(models.CategoryAppointments) != 1 {
			t.Error("expected historical appointments in a full export")
		}
		if forms := snapshot.Categories[models.CategoryForms]; len(forms) != 1 || forms[0].Fields["submissions"] == nil {
			t.Error("expected form submissions in a full export")
		}
		if snapshot.SourceAccount.TenantID != sourceCreds.TenantID || snapshot.SourceAccount.KeyFingerprint == "" {
			t.Errorf("unexpected source ref %+v", snapshot.SourceAccount)
		}
		if len(dst.Events()) != 0 {
			t.Error("backup must not touch other tenants")
		}

		var last ProgressUpdate
		updates := 0
		for u := range progress {
			last = u
			updates++
		}
		if updates == 0 || last.Phase != ExportDone {
			t.Errorf("expected progress ending with %v, got %d updates ending with %v", ExportDone, updates, last.Phase)
		}
	})

	t.Run("records unreadable categories", func(t *testing.T) {
		platform, src, _ := setupPlatform()
		seedTagsAndContacts(src, 1, 2)
		src.Forbid(models.CategoryMedia)

		snapshot, err := NewBackupExporter(platform, testSettings(), testLogger()).Export(ctx, sourceCreds, nil)
		if err != nil {
			t.Fatalf("Export failed: %v", err)
		}
		if _, ok := snapshot.Errors[models.CategoryMedia]; !ok {
			t.Errorf("expected a media error, got %v", snapshot.Errors)
		}
		if len(snapshot.Warnings) == 0 {
			t.Error("expected the analysis warning to be kept")
		}
		if snapshot.RecordCount(models.CategoryContacts) != 2 {
			t.Error("other categories must still be exported")
		}
	})

	t.Run("account failure", func(t *testing.T) {
		platform, src, _ := setupPlatform()
		src.Revoke()

		if _, err := NewBackupExporter(platform, testSettings(), testLogger()).Export(ctx, sourceCreds, nil); !errors.Is(err, shared.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		platform, src, _ := setupPlatform()
		seedTagsAndContacts(src, 1, 2)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := NewBackupExporter(platform, testSettings(), testLogger()).Export(ctx, sourceCreds, nil); err == nil {
			t.Error("expected an error for a cancelled context")
		}
	})
}
