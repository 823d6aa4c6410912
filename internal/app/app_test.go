package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/semmidev/cloudvault/internal/config"
	"github.com/semmidev/cloudvault/internal/domain"
	. "github.com/smartystreets/goconvey/convey"
)

func testConfig(root string) *config.Config {
	return &config.Config{
		App:        config.AppConfig{Name: "cloudvault-test", LogLevel: "error", TempDir: filepath.Join(root, "tmp")},
		Database:   config.DatabaseConfig{Path: filepath.Join(root, "data", "cloudvault.db")},
		Encryption: config.EncryptionConfig{Key: strings.Repeat("ab", 32)},
		Storage: config.StorageConfig{
			DefaultService: "local",
			Bucket:         "vault",
			Local:          config.LocalConfig{Path: filepath.Join(root, "objects")},
		},
		Scheduler: config.SchedulerConfig{RefreshSchedule: "0 0 * * *"},
	}
}

func TestApp(t *testing.T) {
	Convey("Given an app backed by sqlite and the local object store", t, func() {
		root := t.TempDir()
		cfg := testConfig(root)
		So(os.MkdirAll(cfg.App.TempDir, 0755), ShouldBeNil)

		a, err := New(cfg)
		So(err, ShouldBeNil)
		defer a.Shutdown()

		ctx := context.Background()
		So(a.db.CreateUser(ctx, "u1", "u1@example.com", true), ShouldBeNil)

		source := filepath.Join(root, "source")
		So(os.MkdirAll(filepath.Join(source, "notes"), 0755), ShouldBeNil)
		So(os.WriteFile(filepath.Join(source, "a.txt"), []byte("alpha"), 0644), ShouldBeNil)
		So(os.WriteFile(filepath.Join(source, "notes", "b.txt"), []byte("bravo"), 0644), ShouldBeNil)

		Convey("CreateConfig fills defaults and arms recurring configs", func() {
			bc := &domain.BackupConfig{UserID: "u1", Name: "My Docs", SourceDirectory: source, Frequency: domain.FrequencyDaily}
			So(a.Service.CreateConfig(ctx, bc), ShouldBeNil)

			So(bc.Type, ShouldEqual, domain.BackupFull)
			So(bc.RetentionDays, ShouldEqual, domain.DefaultRetentionDays)
			So(bc.CloudLocation.Service, ShouldEqual, "local")
			So(bc.CloudLocation.BucketName, ShouldEqual, "vault")
			So(bc.CloudLocation.Path, ShouldEqual, "u1/My_Docs")
			So(bc.NextRun, ShouldNotBeNil)

			_, armed := a.scheduler.ArmedAt(bc.ID)
			So(armed, ShouldBeTrue)

			Convey("UpdateFrequency to manual disarms it and records the change", func() {
				So(a.Service.UpdateFrequency(ctx, bc.ID, domain.FrequencyManual), ShouldBeNil)

				_, armed := a.scheduler.ArmedAt(bc.ID)
				So(armed, ShouldBeFalse)

				got, err := a.db.GetConfig(ctx, bc.ID)
				So(err, ShouldBeNil)
				So(got.Frequency, ShouldEqual, domain.FrequencyManual)
				So(got.NextRun, ShouldBeNil)

				entries, err := a.db.ListActivity(ctx, "u1")
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 1)
				So(entries[0].Action, ShouldEqual, domain.ActivityBackupStatusChanged)
			})

			Convey("UpdateFrequency rejects an unknown frequency", func() {
				err := a.Service.UpdateFrequency(ctx, bc.ID, domain.Frequency("hourly"))
				So(err, ShouldNotBeNil)

				_, armed := a.scheduler.ArmedAt(bc.ID)
				So(armed, ShouldBeTrue)
			})

			Convey("DeleteConfig disarms and removes it", func() {
				So(a.Service.DeleteConfig(ctx, bc.ID), ShouldBeNil)
				So(a.scheduler.Len(), ShouldEqual, 0)

				_, err := a.db.GetConfig(ctx, bc.ID)
				So(errors.Is(err, domain.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("CreateConfig rejects a config without a source", func() {
			err := a.Service.CreateConfig(ctx, &domain.BackupConfig{UserID: "u1", Name: "x"})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "SourceDirectory")
		})

		Convey("CreateConfig rejects an unknown backup type", func() {
			err := a.Service.CreateConfig(ctx, &domain.BackupConfig{
				UserID: "u1", Name: "x", SourceDirectory: source, Type: domain.BackupType("mirror"),
			})
			So(err, ShouldNotBeNil)
		})

		Convey("An encrypted manual backup restores byte for byte", func() {
			bc := &domain.BackupConfig{
				UserID:             "u1",
				Name:               "Docs",
				SourceDirectory:    source,
				EncryptionEnabled:  true,
				CompressionEnabled: true,
			}
			So(a.Service.CreateConfig(ctx, bc), ShouldBeNil)
			So(a.scheduler.Len(), ShouldEqual, 0)

			h, err := a.RunOnce(ctx, bc.ID)
			So(err, ShouldBeNil)
			So(h.Status, ShouldEqual, domain.HistoryCompleted)
			So(h.Encrypted, ShouldBeTrue)

			target := filepath.Join(root, "restored")
			So(a.RestoreOnce(ctx, h.ID, target), ShouldBeNil)

			data, err := os.ReadFile(filepath.Join(target, "notes", "b.txt"))
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, "bravo")

			Convey("RunBackup in the background completes before shutdown returns", func() {
				id, err := a.Service.RunBackup(ctx, bc.ID)
				So(err, ShouldBeNil)
				a.backupUC.Wait()

				got, err := a.db.GetHistory(ctx, id)
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, domain.HistoryCompleted)
			})
		})

		Convey("Restoring an unknown run fails", func() {
			err := a.Service.RestoreBackup(ctx, "missing", filepath.Join(root, "restored"))
			So(errors.Is(err, domain.ErrNotFound), ShouldBeTrue)
		})
	})
}
