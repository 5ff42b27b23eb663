// Command intakectl is a headless client for the card extraction backend:
// it runs the same upload/validate/process pipeline as the gateway and
// prints the results to the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardscan-intake/gateway/internal/backend"
	"github.com/cardscan-intake/gateway/internal/batch"
	"github.com/cardscan-intake/gateway/internal/format"
	"github.com/cardscan-intake/gateway/internal/models"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	apiBase string
	timeout int
}

func (o *rootOptions) newManager() (*batch.Manager, *backend.HTTPClient) {
	client := backend.NewHTTPClient(o.apiBase, time.Duration(o.timeout)*time.Second)
	return batch.NewManager(client), client
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "intakectl",
		Short:         "Business-card intake from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.apiBase, "api-base",
		"http://localhost:8000/api/v1", "extraction backend base URL")
	cmd.PersistentFlags().IntVar(&opts.timeout, "timeout", 60, "request timeout in seconds")

	cmd.AddCommand(newScanCommand(opts))
	cmd.AddCommand(newRestoreCommand(opts))
	return cmd
}

func newScanCommand(opts *rootOptions) *cobra.Command {
	var (
		save         bool
		exportFormat string
		name         string
		team         string
		event        string
	)

	cmd := &cobra.Command{
		Use:   "scan <files...>",
		Short: "Upload documents, wait for extraction and print the records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			manager, client := opts.newManager()
			defer manager.Close()

			events, cancelSub := manager.Subscribe()
			defer cancelSub()
			go func() {
				for ev := range events {
					if ev.Type == batch.EventNotice && ev.Notice != nil {
						fmt.Printf("  %s %s\n", ev.Notice.Title, ev.Notice.Description)
					}
				}
			}()

			uploads, err := readUploads(args)
			if err != nil {
				return err
			}

			b, err := manager.Start(ctx, uploads)
			if err != nil {
				return err
			}
			manager.WaitIdle()

			if st, err := client.BatchStatus(ctx, b.ID); err == nil {
				fmt.Printf("Backend reports %s (%d/%d files)\n",
					st.Status, st.Progress.Processed, st.Progress.TotalFiles)
			}

			printFiles(manager.Snapshot())
			printRecords(manager.Records())

			if !save && exportFormat == "" {
				return nil
			}
			form := &models.FormContext{Name: name, Team: team, Event: event}
			if form.Empty() {
				return errors.New("--name, --team and --event are required to save or export")
			}
			if exportFormat != "" {
				url, err := manager.ExportURL(ctx, exportFormat, form)
				if err != nil {
					return err
				}
				fmt.Printf("Export ready: %s\n", url)
				return nil
			}
			if err := manager.Save(ctx, form); err != nil {
				return err
			}
			fmt.Println("Records saved")
			return nil
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "save the extracted records after processing")
	cmd.Flags().StringVar(&exportFormat, "format", "", "export and print the download link (csv or vcf)")
	cmd.Flags().StringVar(&name, "name", "", "your name for the saved batch")
	cmd.Flags().StringVar(&team, "team", "", "your team for the saved batch")
	cmd.Flags().StringVar(&event, "event", "", "the event the cards were collected at")
	return cmd
}

func newRestoreCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Show the most recently saved batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, _ := opts.newManager()
			defer manager.Close()

			if !manager.RestoreLatest(cmd.Context()) {
				fmt.Println("No saved session found")
				return nil
			}
			snap := manager.Snapshot()
			form, _ := manager.FormContext()
			fmt.Printf("Batch %s (%s / %s / %s)\n", snap.ID, form.Name, form.Team, form.Event)
			printRecords(manager.Records())
			return nil
		},
	}
}

func readUploads(paths []string) ([]backend.Upload, error) {
	uploads := make([]backend.Upload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		uploads = append(uploads, backend.Upload{
			Name:         filepath.Base(p),
			ContentType:  mime.TypeByExtension(filepath.Ext(p)),
			RelativePath: filepath.ToSlash(filepath.Clean(p)),
			Size:         int64(len(data)),
			Data:         data,
		})
	}
	return uploads, nil
}

func printFiles(b *models.Batch) {
	if b == nil {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tTYPE\tSIZE\tSTATUS\tRECORDS")
	for _, f := range b.Files {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			f.Name, format.FileExtension(f.Name), format.FormatFileSize(f.Size),
			f.Status, f.RecordCount)
	}
	w.Flush()
}

func printRecords(records []models.ExtractedRecord) {
	if len(records) == 0 {
		fmt.Println("No records extracted")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tNAME\tPHONE\tEMAIL\tCOMPANY\tDESIGNATION")
	for i, r := range records {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			i, r.Name, r.Phone, r.Email, r.Company, r.Designation)
	}
	w.Flush()
}
