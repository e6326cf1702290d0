package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"scanflow/internal/config"
	"scanflow/internal/services"
)

// NIfTIConverter turns a directory of DICOM files into NIfTI volumes plus
// JSON sidecars under outputDir, appending the converter's output to the
// file at logPath.
type NIfTIConverter interface {
	Convert(ctx context.Context, dicomDir, outputDir, logPath string) error
}

// BIDSRequest describes one standard-layout conversion.
type BIDSRequest struct {
	// NIfTIDir is the directory holding the converted volumes.
	NIfTIDir string
	// Participant and Session are the labels used in the output layout.
	Participant string
	Session     string
	// OutputDir is the dataset root the converted session lands in.
	OutputDir string
}

// BIDSConverter reorganizes converted volumes into the standard dataset
// layout.
type BIDSConverter interface {
	Convert(ctx context.Context, req BIDSRequest) error
}

// RunCommand executes an external tool, streaming its combined output to w.
// Tests substitute this to avoid spawning processes.
type RunCommand func(ctx context.Context, w io.Writer, name string, args ...string) error

func execRunCommand(ctx context.Context, w io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = w
	cmd.Stderr = w
	return cmd.Run()
}

// CommandNIfTIConverter shells out to dcm2niix. Output files are named
// <series>_<description> with the series number zero padded to three digits,
// matching what the conversion log and the validation pass expect.
type CommandNIfTIConverter struct {
	binary string
	run    RunCommand
}

// NewCommandNIfTIConverter builds a converter around the dcm2niix binary on
// PATH. A nil run uses os/exec.
func NewCommandNIfTIConverter(run RunCommand) *CommandNIfTIConverter {
	if run == nil {
		run = execRunCommand
	}
	return &CommandNIfTIConverter{binary: "dcm2niix", run: run}
}

func (c *CommandNIfTIConverter) Convert(ctx context.Context, dicomDir, outputDir, logPath string) error {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return services.Wrap(services.ErrExternalTool, "nifti-convert", "prepare log dir", logPath, err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "nifti-convert", "open log", logPath, err)
	}
	defer logFile.Close()

	args := []string{"-ba", "n", "-z", "y", "-f", "%3s_%d", "-o", outputDir, dicomDir}
	if err := c.run(ctx, logFile, c.binary, args...); err != nil {
		return services.Wrap(services.ErrExternalTool, "nifti-convert", "run converter",
			fmt.Sprintf("%s %s", c.binary, dicomDir), err)
	}
	return nil
}

// CommandBIDSConverter shells out to dcm2bids using the routing config that
// also drives validation, so the fingerprints checked in pass A are exactly
// the ones applied here.
type CommandBIDSConverter struct {
	binary     string
	configPath string
	run        RunCommand
}

// NewCommandBIDSConverter builds a converter around the dcm2bids binary on
// PATH. A nil run uses os/exec.
func NewCommandBIDSConverter(cfg *config.Config, run RunCommand) *CommandBIDSConverter {
	if run == nil {
		run = execRunCommand
	}
	return &CommandBIDSConverter{
		binary:     "dcm2bids",
		configPath: cfg.Validation.RoutingConfigPath,
		run:        run,
	}
}

func (c *CommandBIDSConverter) Convert(ctx context.Context, req BIDSRequest) error {
	args := []string{
		"-d", req.NIfTIDir,
		"-p", req.Participant,
		"-s", req.Session,
		"-c", c.configPath,
		"-o", req.OutputDir,
	}
	if err := c.run(ctx, io.Discard, c.binary, args...); err != nil {
		return services.Wrap(services.ErrExternalTool, "bids-convert", "run converter",
			fmt.Sprintf("%s participant %s session %s", c.binary, req.Participant, req.Session), err)
	}
	return nil
}

// Uploader pushes one session's directory tree to the archive endpoint under
// the given name.
type Uploader interface {
	Upload(ctx context.Context, dir, name string) error
}

// LocalUploader copies session trees into a local archive directory, standing
// in for a remote archive in single-host deployments.
type LocalUploader struct {
	dir string
}

// NewLocalUploader builds an uploader targeting dir.
func NewLocalUploader(dir string) *LocalUploader {
	return &LocalUploader{dir: dir}
}

func (l *LocalUploader) Upload(ctx context.Context, dir, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return copyTree(dir, filepath.Join(l.dir, name))
}
