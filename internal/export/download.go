package export

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tabx-cli/tabx/internal/logging"
	"github.com/tabx-cli/tabx/internal/progress"
)

// filenameRe salvages a plain filename parameter from headers that
// mime.ParseMediaType rejects, with or without quotes.
var filenameRe = regexp.MustCompile(`filename=(?:"([^"]+)"|([^;\s]+))`)

// FilenameFromDisposition parses a Content-Disposition header value,
// including the RFC 5987 filename* form, which percent-decodes.
// Returns "" when no filename is present.
func FilenameFromDisposition(header string) string {
	var name string
	if _, params, err := mime.ParseMediaType(header); err == nil {
		// ParseMediaType decodes filename* and folds it into "filename".
		name = params["filename"]
	} else if m := filenameRe.FindStringSubmatch(header); m != nil {
		name = m[1]
		if name == "" {
			name = m[2]
		}
	}
	if name == "" {
		return ""
	}
	// Strip any path components a hostile server might send.
	return filepath.Base(strings.TrimSpace(name))
}

// FallbackFilename is used when the server sent no usable filename.
func FallbackFilename(jobID string) string {
	return fmt.Sprintf("export_%s.csv", jobID)
}

// ShowProgress enables the download progress bar for this monitor.
func (m *Monitor) ShowProgress(enabled bool) {
	m.progress = enabled
}

// DownloadTo fetches the finished export as an authenticated stream and
// writes it into destDir. The filename comes from Content-Disposition,
// falling back to export_<job_id>.csv. A partial file is removed on error.
func (m *Monitor) DownloadTo(ctx context.Context, jobID, destDir string) (string, error) {
	dl, err := m.svc.DownloadExport(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("downloading export %s: %w", jobID, err)
	}
	defer dl.Body.Close()

	name := dl.Filename
	if name == "" {
		name = FallbackFilename(jobID)
	}
	if destDir == "" {
		destDir = "."
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	path := filepath.Join(destDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}

	tracker := progress.New(m.progress)
	tracker.Start("Downloading", dl.Size)

	_, copyErr := io.Copy(io.MultiWriter(f, tracker), dl.Body)
	closeErr := f.Close()
	tracker.Finish()

	if copyErr != nil {
		os.Remove(path)
		return "", fmt.Errorf("writing %s: %w", path, copyErr)
	}
	if closeErr != nil {
		os.Remove(path)
		return "", fmt.Errorf("closing %s: %w", path, closeErr)
	}

	logging.Info("export %s downloaded to %s (%d bytes)", jobID, path, tracker.Current())
	return path, nil
}
