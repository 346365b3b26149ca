package cli

import (
	"fmt"
	"io"

	"roadstream/internal/config"
	"roadstream/internal/logger"
	"roadstream/internal/repository/sqlite"
	"roadstream/internal/service/storage"
	"roadstream/internal/service/stream"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// ImportOptions holds command options
type ImportOptions struct {
	Dir  string
	Kind string
}

// NewImportCommand creates the import command
func NewImportCommand() *cobra.Command {
	opts := &ImportOptions{}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Add existing video files to the catalogue",
		Long:  `Scan a directory for video files the catalogue does not know yet and record them under the given pipeline kind. Non-video files are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadEnv()
			if err != nil {
				return err
			}
			if opts.Dir == "" {
				opts.Dir = cfg.UploadDir
			}
			return runImport(cfg, log, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", "", "Directory to scan (defaults to UPLOAD_DIR)")
	cmd.Flags().StringVar(&opts.Kind, "kind", string(stream.KindPothole), "Pipeline kind to record: pothole or lane")

	return cmd
}

func runImport(cfg *config.Config, log *logger.Logger, opts *ImportOptions, out io.Writer) error {
	kind, err := stream.ParseKind(opts.Kind)
	if err != nil {
		return err
	}

	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	uploads := storage.NewUploads(cfg, sqlite.NewVideoRepository(db), sqlite.NewAlertRepository(db), log)
	imported, err := uploads.Import(opts.Dir, string(kind))
	for _, v := range imported {
		fmt.Fprintf(out, "  %s %s (%s, %d bytes)\n", color.GreenString("+"), v.Filename, v.MimeType, v.FileSize)
	}
	if err != nil {
		return err
	}

	if len(imported) == 0 {
		fmt.Fprintln(out, color.New(color.Faint).Sprintf("Nothing to import from %s", opts.Dir))
		return nil
	}
	fmt.Fprintf(out, "Imported %s videos as %s\n", color.CyanString("%d", len(imported)), kind)
	return nil
}
