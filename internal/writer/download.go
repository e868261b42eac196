package writer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"

	"github.com/lamim/deckforge/internal/api"
)

// DownloadOpener is the part of the job client the downloader needs
type DownloadOpener interface {
	OpenDownload(ctx context.Context, jobID string) (*api.Download, error)
}

// Downloader saves completed job results into the run directory
type Downloader struct {
	client   DownloadOpener
	session  *SessionManager
	logger   *slog.Logger
	progress io.Writer // nil disables the progress bar
}

// NewDownloader creates a downloader. progress receives a byte progress bar
// when non-nil.
func NewDownloader(client DownloadOpener, session *SessionManager, logger *slog.Logger, progress io.Writer) *Downloader {
	return &Downloader{
		client:   client,
		session:  session,
		logger:   logger,
		progress: progress,
	}
}

// Fetch downloads the result of jobID and returns the saved path. fallbackName
// is used when the backend does not suggest a filename.
func (d *Downloader) Fetch(ctx context.Context, jobID, fallbackName string) (string, error) {
	dl, err := d.client.OpenDownload(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("failed to start download: %w", err)
	}
	defer dl.Body.Close()

	name := dl.Filename
	if name == "" {
		name = fallbackName
	}
	dest := d.session.ResultPath(name)
	tempPath := dest + ".part"

	f, err := os.Create(tempPath)
	if err != nil {
		return "", fmt.Errorf("failed to create download file: %w", err)
	}

	var w io.Writer = f
	if d.progress != nil {
		bar := progressbar.NewOptions64(dl.Size,
			progressbar.OptionSetWriter(d.progress),
			progressbar.OptionSetDescription("Downloading "+filepath.Base(dest)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
		w = io.MultiWriter(f, bar)
	}

	n, err := io.Copy(w, dl.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("failed to write download: %w", err)
	}
	if dl.Size >= 0 && n != dl.Size {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("download truncated: got %d of %d bytes", n, dl.Size)
	}

	if err := os.Rename(tempPath, dest); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("failed to finalize download: %w", err)
	}

	d.logger.Info("Downloaded result", "job_id", jobID, "path", dest, "bytes", n)
	return dest, nil
}
