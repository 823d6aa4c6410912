package domain

import "errors"

var (
	ErrNoFilesToBackup    = errors.New("no files to backup")
	ErrArchiveFailure     = errors.New("archive failure")
	ErrEncryptionFailure  = errors.New("encryption failure")
	ErrDecryption         = errors.New("decryption error")
	ErrStorage            = errors.New("storage error")
	ErrUnsupportedBackend = errors.New("unsupported backend")
	ErrScheduling         = errors.New("scheduling error")

	ErrAlreadyRunning = errors.New("backup is already running")
	ErrNotFound       = errors.New("not found")
	ErrNotRestorable  = errors.New("backup is not restorable")
)
