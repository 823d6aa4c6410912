package usecase

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/semmidev/cloudvault/internal/domain"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCleanup(t *testing.T) {
	Convey("Given a daily config with one day of retention", t, func() {
		h := newHarness(t)
		ctx := context.Background()
		now := time.Now()

		cfg := h.config(func(c *domain.BackupConfig) {
			c.Frequency = domain.FrequencyDaily
			c.RetentionDays = 1
		})

		artifact := filepath.Join(h.root, "artifact.zip")
		So(os.WriteFile(artifact, []byte("zip"), 0644), ShouldBeNil)

		completed := func(age time.Duration) *domain.BackupHistory {
			start := now.Add(-age)
			hist := &domain.BackupHistory{
				ConfigID:  cfg.ID,
				UserID:    cfg.UserID,
				StartTime: start,
				Status:    domain.HistoryCompleted,
				CloudLocation: domain.CloudLocation{
					Service:    "local",
					BucketName: "vault",
					Path:       ExecutionPath(cfg.CloudLocation.Path, start),
				},
			}
			So(h.repo.CreateHistory(ctx, hist), ShouldBeNil)
			So(h.local.Put(ctx, "vault", artifact, hist.ArtifactKey()), ShouldBeNil)
			return hist
		}

		fiveDays := completed(5 * 24 * time.Hour)
		twoHours := completed(2 * time.Hour)

		Convey("The reaper deletes only the five day old artifact", func() {
			deleted, err := h.cleanup.Execute(ctx, cfg)
			So(err, ShouldBeNil)
			So(deleted, ShouldEqual, 1)

			old, _ := h.repo.GetHistory(ctx, fiveDays.ID)
			So(old.Status, ShouldEqual, domain.HistoryDeleted)
			_, err = os.Stat(h.local.GetPath("vault", fiveDays.ArtifactKey()))
			So(os.IsNotExist(err), ShouldBeTrue)

			recent, _ := h.repo.GetHistory(ctx, twoHours.ID)
			So(recent.Status, ShouldEqual, domain.HistoryCompleted)
			_, err = os.Stat(h.local.GetPath("vault", twoHours.ArtifactKey()))
			So(err, ShouldBeNil)

			Convey("Running it again is a no-op", func() {
				deleted, err := h.cleanup.Execute(ctx, cfg)
				So(err, ShouldBeNil)
				So(deleted, ShouldEqual, 0)

				recent, _ := h.repo.GetHistory(ctx, twoHours.ID)
				So(recent.Status, ShouldEqual, domain.HistoryCompleted)
			})
		})

		Convey("A failed deletion leaves the entry for the next pass", func() {
			h.store.failDelete = true
			deleted, err := h.cleanup.Execute(ctx, cfg)
			So(err, ShouldBeNil)
			So(deleted, ShouldEqual, 0)

			old, _ := h.repo.GetHistory(ctx, fiveDays.ID)
			So(old.Status, ShouldEqual, domain.HistoryCompleted)

			h.store.failDelete = false
			deleted, _ = h.cleanup.Execute(ctx, cfg)
			So(deleted, ShouldEqual, 1)
		})

		Convey("Entries on an unsupported backend are skipped", func() {
			stray := &domain.BackupHistory{
				ConfigID:      cfg.ID,
				StartTime:     now.AddDate(0, 0, -3),
				Status:        domain.HistoryCompleted,
				CloudLocation: domain.CloudLocation{Service: "azure", BucketName: "vault", Path: "x"},
			}
			So(h.repo.CreateHistory(ctx, stray), ShouldBeNil)

			deleted, err := h.cleanup.Execute(ctx, cfg)
			So(err, ShouldBeNil)
			So(deleted, ShouldEqual, 1)

			got, _ := h.repo.GetHistory(ctx, stray.ID)
			So(got.Status, ShouldEqual, domain.HistoryCompleted)
		})

		Convey("Zero retention days fall back to thirty", func() {
			cfg.RetentionDays = 0
			ancient := completed(40 * 24 * time.Hour)

			deleted, err := h.cleanup.Execute(ctx, cfg)
			So(err, ShouldBeNil)
			So(deleted, ShouldEqual, 1)

			got, _ := h.repo.GetHistory(ctx, ancient.ID)
			So(got.Status, ShouldEqual, domain.HistoryDeleted)
			got, _ = h.repo.GetHistory(ctx, fiveDays.ID)
			So(got.Status, ShouldEqual, domain.HistoryCompleted)
		})
	})
}
