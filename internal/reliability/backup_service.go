// Package reliability snapshots the ledger and keeps the databases healthy.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aristath/sigmaguard/internal/database"
	"github.com/rs/zerolog"
)

const (
	archivePrefix   = "sigmaguard-backup-"
	archiveSuffix   = ".tar.gz"
	archiveLayout   = "2006-01-02-150405"
	metadataFile    = "backup-metadata.json"
	metadataVersion = "1"

	// minRemoteBackups are never rotated away, whatever their age
	minRemoteBackups = 3
)

// BackupMetadata is written next to the snapshots inside every archive
type BackupMetadata struct {
	Timestamp time.Time          `json:"timestamp"`
	Version   string             `json:"version"`
	Databases []DatabaseMetadata `json:"databases"`
}

// DatabaseMetadata describes one snapshot in an archive
type DatabaseMetadata struct {
	Name          string `json:"name"`
	Filename      string `json:"filename"`
	SizeBytes     int64  `json:"size_bytes"`
	Checksum      string `json:"checksum"`
	SchemaVersion int    `json:"schema_version"`
}

// BackupInfo describes an archive, local or remote
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// BackupOptions controls retention
type BackupOptions struct {
	Dir           string // local archive directory
	KeepLocal     int    // newest local archives to keep, <=0 keeps all
	RetentionDays int    // remote age limit, 0 keeps all
}

// BackupService writes consistent snapshots of the databases into a tar.gz
// archive and optionally ships it to an object store.
type BackupService struct {
	databases []*database.DB
	store     ObjectStore // nil disables uploads
	opts      BackupOptions
	now       func() time.Time
	log       zerolog.Logger
}

// NewBackupService creates a backup service. store may be nil.
func NewBackupService(databases []*database.DB, store ObjectStore, opts BackupOptions, log zerolog.Logger) *BackupService {
	return &BackupService{
		databases: databases,
		store:     store,
		opts:      opts,
		now:       time.Now,
		log:       log.With().Str("service", "backup").Logger(),
	}
}

// UploadsEnabled reports whether archives leave the host
func (s *BackupService) UploadsEnabled() bool {
	return s.store != nil
}

// CreateBackup snapshots every database, archives the snapshots and uploads
// the archive when a store is configured. Rotation runs afterwards; rotation
// failures are logged, not returned.
func (s *BackupService) CreateBackup(ctx context.Context) (*BackupInfo, error) {
	s.log.Info().Msg("Starting backup")
	startTime := time.Now()
	timestamp := s.now().UTC()

	if err := os.MkdirAll(s.opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	stagingDir, err := os.MkdirTemp(s.opts.Dir, "staging-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	metadata := BackupMetadata{
		Timestamp: timestamp,
		Version:   metadataVersion,
		Databases: make([]DatabaseMetadata, 0, len(s.databases)),
	}
	files := make([]string, 0, len(s.databases)+1)

	for _, db := range s.databases {
		dbMeta, err := s.snapshot(ctx, db, stagingDir)
		if err != nil {
			return nil, err
		}
		metadata.Databases = append(metadata.Databases, *dbMeta)
		files = append(files, dbMeta.Filename)
	}

	if err := writeMetadata(filepath.Join(stagingDir, metadataFile), metadata); err != nil {
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}
	files = append(files, metadataFile)

	archiveName := archivePrefix + timestamp.Format(archiveLayout) + archiveSuffix
	archivePath := filepath.Join(s.opts.Dir, archiveName)
	if err := createArchive(archivePath, stagingDir, files); err != nil {
		os.Remove(archivePath)
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	if s.store != nil {
		if err := s.upload(ctx, archivePath, archiveName); err != nil {
			return nil, err
		}
	}

	if err := s.RotateLocal(); err != nil {
		s.log.Warn().Err(err).Msg("Local rotation failed")
	}
	if s.store != nil {
		if err := s.RotateRemote(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Remote rotation failed")
		}
	}

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("archive", archiveName).
		Int64("size_bytes", archiveInfo.Size()).
		Bool("uploaded", s.store != nil).
		Msg("Backup completed")

	return &BackupInfo{
		Filename:  archiveName,
		Timestamp: timestamp,
		SizeBytes: archiveInfo.Size(),
	}, nil
}

func (s *BackupService) snapshot(ctx context.Context, db *database.DB, stagingDir string) (*DatabaseMetadata, error) {
	name := db.Name()
	filename := name + ".db"
	dest := filepath.Join(stagingDir, filename)

	if err := db.WALCheckpoint("TRUNCATE"); err != nil {
		// a busy checkpoint does not affect VACUUM INTO consistency
		s.log.Warn().Err(err).Str("database", name).Msg("WAL checkpoint failed")
	}
	if err := db.SnapshotTo(ctx, dest); err != nil {
		return nil, fmt.Errorf("failed to backup %s: %w", name, err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s backup: %w", name, err)
	}
	checksum, err := calculateChecksum(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate checksum for %s: %w", name, err)
	}
	version, err := db.SchemaVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema version of %s: %w", name, err)
	}

	return &DatabaseMetadata{
		Name:          name,
		Filename:      filename,
		SizeBytes:     info.Size(),
		Checksum:      checksum,
		SchemaVersion: version,
	}, nil
}

func (s *BackupService) upload(ctx context.Context, archivePath, archiveName string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	if err := s.store.Upload(ctx, archiveName, f); err != nil {
		return fmt.Errorf("failed to upload backup: %w", err)
	}
	return nil
}

// ListLocal returns local archives, newest first
func (s *BackupService) ListLocal() ([]BackupInfo, error) {
	entries, err := os.ReadDir(s.opts.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	now := s.now()
	var backups []BackupInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ts, ok := parseArchiveName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, BackupInfo{
			Filename:  entry.Name(),
			Timestamp: ts,
			SizeBytes: info.Size(),
			AgeHours:  int64(now.Sub(ts).Hours()),
		})
	}
	sortNewestFirst(backups)
	return backups, nil
}

// ListRemote returns uploaded archives, newest first
func (s *BackupService) ListRemote(ctx context.Context) ([]BackupInfo, error) {
	if s.store == nil {
		return nil, nil
	}
	objects, err := s.store.List(ctx, archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote backups: %w", err)
	}

	now := s.now()
	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		ts, ok := parseArchiveName(obj.Key)
		if !ok {
			s.log.Warn().Str("key", obj.Key).Msg("Skipping object with unexpected name")
			continue
		}
		backups = append(backups, BackupInfo{
			Filename:  obj.Key,
			Timestamp: ts,
			SizeBytes: obj.SizeBytes,
			AgeHours:  int64(now.Sub(ts).Hours()),
		})
	}
	sortNewestFirst(backups)
	return backups, nil
}

// RotateLocal deletes local archives beyond the newest KeepLocal
func (s *BackupService) RotateLocal() error {
	if s.opts.KeepLocal <= 0 {
		return nil
	}
	backups, err := s.ListLocal()
	if err != nil {
		return err
	}
	for _, b := range backups[min(len(backups), s.opts.KeepLocal):] {
		if err := os.Remove(filepath.Join(s.opts.Dir, b.Filename)); err != nil {
			return fmt.Errorf("failed to remove %s: %w", b.Filename, err)
		}
		s.log.Debug().Str("archive", b.Filename).Msg("Removed local backup")
	}
	return nil
}

// RotateRemote deletes remote archives older than RetentionDays, always
// keeping the newest few.
func (s *BackupService) RotateRemote(ctx context.Context) error {
	if s.store == nil || s.opts.RetentionDays <= 0 {
		return nil
	}
	backups, err := s.ListRemote(ctx)
	if err != nil {
		return err
	}
	if len(backups) <= minRemoteBackups {
		return nil
	}

	cutoff := s.now().AddDate(0, 0, -s.opts.RetentionDays)
	deleted := 0
	for _, b := range backups[minRemoteBackups:] {
		if !b.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, b.Filename); err != nil {
			s.log.Error().Err(err).Str("archive", b.Filename).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(backups)-deleted).
		Msg("Remote backup rotation completed")
	return nil
}

func parseArchiveName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, archivePrefix) || !strings.HasSuffix(name, archiveSuffix) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, archivePrefix), archiveSuffix)
	ts, err := time.Parse(archiveLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func sortNewestFirst(backups []BackupInfo) {
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
}

func calculateChecksum(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeMetadata(path string, metadata BackupMetadata) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

func createArchive(archivePath, sourceDir string, files []string) (err error) {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer func() {
		if cerr := archiveFile.Close(); err == nil {
			err = cerr
		}
	}()

	gzipWriter := gzip.NewWriter(archiveFile)
	tarWriter := tar.NewWriter(gzipWriter)

	for _, name := range files {
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, name), name); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
	}

	if err := tarWriter.Close(); err != nil {
		return err
	}
	return gzipWriter.Close()
}

func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode().Perm()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tarWriter, file)
	return err
}
