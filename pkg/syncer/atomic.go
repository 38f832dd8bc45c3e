package syncer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/terrycain/blob-config-sync/pkg/e"
	"github.com/terrycain/blob-config-sync/pkg/s"
)

// writeAtomic writes data to the staging file, fsyncs it and renames it over the live file.
// Readers of the live path see the old or the new content, never a partial write.
func writeAtomic(target s.LocalTarget, data []byte) (err error) {
	fp, err := os.OpenFile(target.StagingPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open staging file: %s", e.ErrFilesystem, err.Error())
	}

	defer func() {
		if err != nil {
			_ = os.Remove(target.StagingPath)
		}
	}()

	if _, err = fp.Write(data); err != nil {
		_ = fp.Close()
		return fmt.Errorf("%w: write staging file: %s", e.ErrFilesystem, err.Error())
	}
	if err = fp.Sync(); err != nil {
		_ = fp.Close()
		return fmt.Errorf("%w: fsync staging file: %s", e.ErrFilesystem, err.Error())
	}
	if err = fp.Close(); err != nil {
		return fmt.Errorf("%w: close staging file: %s", e.ErrFilesystem, err.Error())
	}

	if err = os.Rename(target.StagingPath, target.LivePath); err != nil {
		return fmt.Errorf("%w: replace live file: %s", e.ErrFilesystem, err.Error())
	}

	syncDir(filepath.Dir(target.LivePath))
	return nil
}

// syncDir persists the rename. Not every platform lets you fsync a directory, so failures are only logged.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		log.Debug().Err(err).Str("dir", dir).Msg("Failed to open config dir for fsync")
		return
	}
	defer d.Close()

	if err = d.Sync(); err != nil {
		log.Debug().Err(err).Str("dir", dir).Msg("Failed to fsync config dir")
	}
}
