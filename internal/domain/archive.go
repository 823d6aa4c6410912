package domain

import "time"

// SelectionPolicy selects which files of a source tree go into an archive.
// For full backups Since is ignored; otherwise a file is selected when its
// modification time is strictly after Since.
type SelectionPolicy struct {
	Type  BackupType
	Since time.Time
}

type Archiver interface {
	SelectFiles(sourceDir string, policy SelectionPolicy) ([]string, error)
	Build(sourceDir string, files []string, destPath string, compress bool) error
	Extract(archivePath, targetDir string) error
}

// Codec encrypts and decrypts whole files.
type Codec interface {
	Encrypt(plaintextPath, ciphertextPath string) error
	Decrypt(ciphertextPath, plaintextPath string) error
}
