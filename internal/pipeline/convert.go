package pipeline

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"scanflow/internal/conversion"
	"scanflow/internal/logging"
	"scanflow/internal/services"
	"scanflow/internal/stage"
	"scanflow/internal/store"
)

// ConvertToNIfTI extracts each downloaded session archive and runs the
// DICOM to NIfTI converter over it, then registers one series row per
// converted output and stamps the session. A converter failure skips the
// session; it stays eligible for the next run.
func (p *Pipeline) ConvertToNIfTI(ctx context.Context) error {
	return p.run(ctx, "nifti-convert", func(ctx context.Context, logger *slog.Logger) error {
		sessions, err := p.store.Sessions(ctx)
		if err != nil {
			return err
		}
		for _, session := range stage.Select(stage.StageNIfTIConversion, sessions) {
			if err := p.convertSession(ctx, logger, session); err != nil {
				if services.IsFatal(err) {
					return err
				}
				logger.Warn("conversion failed",
					logging.String(logging.FieldSession, session.DataFile), logging.Error(err))
			}
		}
		return nil
	})
}

func (p *Pipeline) convertSession(ctx context.Context, logger *slog.Logger, session *store.Session) error {
	dir := p.sessionDir(session)
	dicomDir := filepath.Join(dir, "dicom")
	if err := extractArchive(filepath.Join(dir, session.DataFile), dicomDir); err != nil {
		return services.Wrap(services.ErrExternalTool, "nifti-convert", "extract archive",
			session.DataFile, err)
	}

	niftiDir := filepath.Join(dir, "convert", "nifti")
	logPath := filepath.Join(dir, "convert", "log", p.cfg.Validation.ConversionLogName)
	if err := os.MkdirAll(niftiDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfig, "nifti-convert", "create output dir", niftiDir, err)
	}
	if err := p.nifti.Convert(ctx, dicomDir, niftiDir, logPath); err != nil {
		return err
	}
	if err := organizeOutputs(niftiDir); err != nil {
		return err
	}
	if err := p.registerSeries(ctx, logger, session, niftiDir); err != nil {
		return err
	}
	if err := p.stampSession(ctx, session.ID, func(update *store.SessionUpdate) {
		update.ConvertedToNIfTIAt = store.Ptr(p.now())
	}); err != nil {
		return err
	}
	logger.Info("session converted", logging.String(logging.FieldSession, session.DataFile))
	return nil
}

// organizeOutputs moves the converter's flat output files into one
// subdirectory per series, named by the zero-padded series number. The
// validation pass looks files up under that layout.
func organizeOutputs(niftiDir string) error {
	entries, err := os.ReadDir(niftiDir)
	if err != nil {
		return services.Wrap(services.ErrConfig, "nifti-convert", "read output dir", niftiDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		number, _, err := conversion.ParseConvertedFileName(entry.Name())
		if err != nil {
			continue
		}
		seriesDir := filepath.Join(niftiDir, fmt.Sprintf("%03d", number))
		if err := os.MkdirAll(seriesDir, 0o755); err != nil {
			return services.Wrap(services.ErrConfig, "nifti-convert", "create series dir", seriesDir, err)
		}
		src := filepath.Join(niftiDir, entry.Name())
		if err := os.Rename(src, filepath.Join(seriesDir, entry.Name())); err != nil {
			return services.Wrap(services.ErrConfig, "nifti-convert", "move output", src, err)
		}
	}
	return nil
}

// registerSeries adds one series row per distinct series number found in the
// converter output, skipping numbers already registered.
func (p *Pipeline) registerSeries(ctx context.Context, logger *slog.Logger, session *store.Session, niftiDir string) error {
	dirs, err := os.ReadDir(niftiDir)
	if err != nil {
		return services.Wrap(services.ErrConfig, "nifti-convert", "read output dir", niftiDir, err)
	}
	for _, seriesEntry := range dirs {
		if !seriesEntry.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(niftiDir, seriesEntry.Name()))
		if err != nil || len(files) == 0 {
			continue
		}
		number, description, err := conversion.ParseConvertedFileName(files[0].Name())
		if err != nil {
			continue
		}
		known, err := p.store.SeriesBySessionAndNumber(ctx, session.ID, number)
		if err != nil {
			return err
		}
		if known != nil {
			continue
		}
		series := &store.Series{
			Study:         session.Study,
			ParticipantID: session.ParticipantID,
			SessionID:     session.ID,
			SeriesNumber:  number,
			RecordedAt:    session.DataRecordedAt,
			Description:   description,
		}
		if _, err := p.store.AddSeries(ctx, series); err != nil {
			return err
		}
		logger.Debug("series registered",
			logging.String(logging.FieldSession, session.DataFile),
			logging.Int(logging.FieldSeries, number))
	}
	return nil
}

// extractArchive unpacks a zip archive under dest, refusing entries whose
// paths escape it. Extraction is idempotent: existing files are overwritten.
func extractArchive(archivePath, dest string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer reader.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	for _, file := range reader.File {
		target := filepath.Join(dest, filepath.FromSlash(file.Name))
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes destination", file.Name)
		}
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(file, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(file *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	in, err := file.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
