package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/semmidev/cloudvault/internal/domain"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLocalStorage(t *testing.T) {
	Convey("Given a LocalStorage", t, func() {
		tempDir, err := os.MkdirTemp("", "local_storage_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		basePath := filepath.Join(tempDir, "store")
		ctx := context.Background()

		Convey("NewLocal", func() {
			Convey("When creating with non-existent path", func() {
				newPath := filepath.Join(tempDir, "new", "nested", "dir")
				storage, err := NewLocal(newPath)

				Convey("It should create directory and succeed", func() {
					So(err, ShouldBeNil)
					So(storage, ShouldNotBeNil)
					So(storage.basePath, ShouldEqual, newPath)

					info, err := os.Stat(newPath)
					So(err, ShouldBeNil)
					So(info.IsDir(), ShouldBeTrue)
				})
			})
		})

		storage, err := NewLocal(basePath)
		So(err, ShouldBeNil)

		sourceFile := filepath.Join(tempDir, "source.txt")
		So(os.WriteFile(sourceFile, []byte("test content"), 0644), ShouldBeNil)

		Convey("Put method", func() {
			Convey("When uploading a valid file", func() {
				err := storage.Put(ctx, "bucket", sourceFile, "u1/docs/2024/backup.zip")

				Convey("It should land under the bucket directory", func() {
					So(err, ShouldBeNil)

					content, err := os.ReadFile(storage.GetPath("bucket", "u1/docs/2024/backup.zip"))
					So(err, ShouldBeNil)
					So(string(content), ShouldEqual, "test content")
				})
			})

			Convey("When source file does not exist", func() {
				err := storage.Put(ctx, "bucket", filepath.Join(tempDir, "nonexistent.txt"), "x.zip")

				Convey("It should return a storage error", func() {
					So(err, ShouldNotBeNil)
					So(errors.Is(err, domain.ErrStorage), ShouldBeTrue)
					So(err.Error(), ShouldContainSubstring, "failed to open source")
				})
			})

			Convey("When the key climbs out of the bucket", func() {
				err := storage.Put(ctx, "bucket", sourceFile, "../outside.zip")

				Convey("It should be rejected", func() {
					So(errors.Is(err, domain.ErrStorage), ShouldBeTrue)
					_, statErr := os.Stat(filepath.Join(basePath, "outside.zip"))
					So(os.IsNotExist(statErr), ShouldBeTrue)
				})
			})
		})

		Convey("Get method", func() {
			So(storage.Put(ctx, "bucket", sourceFile, "u1/a/backup.zip"), ShouldBeNil)

			Convey("When the object exists", func() {
				dest := filepath.Join(tempDir, "restore", "nested", "backup.zip")
				err := storage.Get(ctx, "bucket", "u1/a/backup.zip", dest)

				Convey("It should copy it to the local path", func() {
					So(err, ShouldBeNil)
					content, err := os.ReadFile(dest)
					So(err, ShouldBeNil)
					So(string(content), ShouldEqual, "test content")
				})
			})

			Convey("When the object is missing", func() {
				err := storage.Get(ctx, "bucket", "u1/a/missing.zip", filepath.Join(tempDir, "out.zip"))

				Convey("It should return a storage error", func() {
					So(errors.Is(err, domain.ErrStorage), ShouldBeTrue)
				})
			})
		})

		Convey("List method", func() {
			So(storage.Put(ctx, "bucket", sourceFile, "u1/docs/t1/backup.zip"), ShouldBeNil)
			So(storage.Put(ctx, "bucket", sourceFile, "u1/docs/t2/backup.zip.enc"), ShouldBeNil)
			So(storage.Put(ctx, "bucket", sourceFile, "u1/photos/t1/backup.zip"), ShouldBeNil)
			So(storage.Put(ctx, "other", sourceFile, "u1/docs/t3/backup.zip"), ShouldBeNil)

			Convey("When listing a directory prefix", func() {
				objects, err := storage.List(ctx, "bucket", "u1/docs/")

				Convey("It should return only keys under the prefix in that bucket", func() {
					So(err, ShouldBeNil)
					names := make([]string, 0, len(objects))
					for _, obj := range objects {
						names = append(names, obj.Name)
						So(obj.Size, ShouldEqual, int64(len("test content")))
					}
					sort.Strings(names)
					So(names, ShouldResemble, []string{"u1/docs/t1/backup.zip", "u1/docs/t2/backup.zip.enc"})
				})
			})

			Convey("When listing a partial name prefix", func() {
				objects, err := storage.List(ctx, "bucket", "u1/do")

				Convey("It should match by key prefix", func() {
					So(err, ShouldBeNil)
					So(len(objects), ShouldEqual, 2)
				})
			})

			Convey("When the prefix does not exist", func() {
				objects, err := storage.List(ctx, "bucket", "nobody/")

				Convey("It should return empty list", func() {
					So(err, ShouldBeNil)
					So(len(objects), ShouldEqual, 0)
				})
			})
		})

		Convey("Delete method", func() {
			So(storage.Put(ctx, "bucket", sourceFile, "u1/docs/t1/backup.zip"), ShouldBeNil)
			So(storage.Put(ctx, "bucket", sourceFile, "u1/docs/t1/manifest.json"), ShouldBeNil)
			So(storage.Put(ctx, "bucket", sourceFile, "u1/docs/t2/backup.zip"), ShouldBeNil)

			Convey("When deleting existing file", func() {
				err := storage.Delete(ctx, "bucket", "u1/docs/t2/backup.zip")

				Convey("It should delete successfully", func() {
					So(err, ShouldBeNil)
					_, err := os.Stat(storage.GetPath("bucket", "u1/docs/t2/backup.zip"))
					So(os.IsNotExist(err), ShouldBeTrue)
				})
			})

			Convey("When deleting a prefix", func() {
				err := storage.Delete(ctx, "bucket", "u1/docs/t1/")

				Convey("It should remove everything under it and nothing else", func() {
					So(err, ShouldBeNil)
					objects, err := storage.List(ctx, "bucket", "u1/docs/")
					So(err, ShouldBeNil)
					So(len(objects), ShouldEqual, 1)
					So(objects[0].Name, ShouldEqual, "u1/docs/t2/backup.zip")
				})
			})

			Convey("When deleting a prefix twice", func() {
				So(storage.Delete(ctx, "bucket", "u1/docs/t1/"), ShouldBeNil)
				err := storage.Delete(ctx, "bucket", "u1/docs/t1/")

				Convey("It should still succeed", func() {
					So(err, ShouldBeNil)
				})
			})

			Convey("When deleting non-existent file", func() {
				err := storage.Delete(ctx, "bucket", "nonexistent.txt")

				Convey("It should succeed like an object store", func() {
					So(err, ShouldBeNil)
				})
			})

			Convey("When the key is a non-empty directory", func() {
				err := storage.Delete(ctx, "bucket", "u1/docs/t1")

				Convey("It should return error", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "failed to delete file")
				})
			})
		})
	})
}

func TestRegistry(t *testing.T) {
	Convey("Given a registry with a local backend", t, func() {
		tempDir, err := os.MkdirTemp("", "registry_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		local, err := NewLocal(tempDir)
		So(err, ShouldBeNil)

		registry := NewRegistry()
		registry.Register(ServiceLocal, local)

		Convey("Resolving a registered service returns it", func() {
			store, err := registry.Resolve(ServiceLocal)
			So(err, ShouldBeNil)
			So(store, ShouldEqual, local)
		})

		Convey("Resolving azure is unsupported", func() {
			_, err := registry.Resolve(ServiceAzure)
			So(errors.Is(err, domain.ErrUnsupportedBackend), ShouldBeTrue)
		})

		Convey("Resolving an unknown service is unsupported", func() {
			_, err := registry.Resolve("dropbox")
			So(errors.Is(err, domain.ErrUnsupportedBackend), ShouldBeTrue)
		})

		Convey("Services lists registered names", func() {
			So(registry.Services(), ShouldResemble, []string{ServiceLocal})
		})
	})
}
