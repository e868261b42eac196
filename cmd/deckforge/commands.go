package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lamim/deckforge/internal/api"
	"github.com/lamim/deckforge/internal/config"
	"github.com/lamim/deckforge/internal/orchestrator"
	"github.com/lamim/deckforge/internal/outline"
	"github.com/lamim/deckforge/internal/writer"
	"github.com/lamim/deckforge/pkg/models"
)

// withApp runs fn with a ready app and a context cancelled on SIGINT/SIGTERM
func withApp(fn func(ctx context.Context, a *app) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = fn(ctx, a)
	if errors.Is(err, context.Canceled) {
		a.logger.Warn("Interrupted", "run_dir", a.session.RunDir())
		return fmt.Errorf("interrupted")
	}
	return err
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models the backend offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				list, err := a.orch.LoadModels(ctx)
				if err != nil {
					return fmt.Errorf("failed to list models: %w", err)
				}
				def := a.orch.DefaultModel()
				for _, m := range list {
					marker := " "
					if m == def {
						marker = "*"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, m)
				}
				return nil
			})
		},
	}
}

type outlineFlags struct {
	content     string
	contentFile string
	model       string
	slides      int
}

func (f *outlineFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.content, "content", "", "Source text for the outline")
	cmd.Flags().StringVar(&f.contentFile, "content-file", "", "Read source text from a file (- for stdin)")
	cmd.Flags().StringVar(&f.model, "model", "", "Model to use (default from config)")
	cmd.Flags().IntVar(&f.slides, "slides", 0, "Number of slides, 5-30 (default from config)")
	cmd.MarkFlagsMutuallyExclusive("content", "content-file")
}

func (f *outlineFlags) text(stdin io.Reader) (string, error) {
	switch f.contentFile {
	case "":
		return f.content, nil
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(f.contentFile)
		if err != nil {
			return "", fmt.Errorf("failed to read content file: %w", err)
		}
		return string(data), nil
	}
}

// generateOutline asks the backend for an outline and saves it to dest
// (the run directory when empty)
func generateOutline(ctx context.Context, a *app, f *outlineFlags, stdin io.Reader, dest string) (models.Outline, string, error) {
	content, err := f.text(stdin)
	if err != nil {
		return models.Outline{}, "", err
	}

	if err := a.orch.RequestOutline(ctx, content, f.model, f.slides); err != nil {
		return models.Outline{}, "", fmt.Errorf("outline generation failed: %s", api.Message(err))
	}

	doc := *a.orch.State().Outline
	if dest == "" {
		dest = a.session.OutlinePath()
	}
	if err := writer.SaveOutline(dest, doc); err != nil {
		return doc, "", err
	}
	a.logger.Info("Outline saved", "path", dest, "title", doc.Title, "slides", len(doc.Slides))
	return doc, dest, nil
}

func newOutlineCmd() *cobra.Command {
	var f outlineFlags
	var output string

	cmd := &cobra.Command{
		Use:   "outline",
		Short: "Generate an outline from text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				doc, path, err := generateOutline(ctx, a, &f, cmd.InOrStdin(), output)
				if err != nil {
					return err
				}
				printOutline(cmd.OutOrStdout(), doc)
				fmt.Fprintf(cmd.OutOrStdout(), "\nSaved to %s\n", path)
				return nil
			})
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Where to save the outline (.yaml, .yml or .json)")
	return cmd
}

type editFlags struct {
	slide  int
	field  string
	value  string
	title  string
	insert int
	delete int
	move   string
}

func newEditCmd() *cobra.Command {
	f := editFlags{slide: -1, insert: -1, delete: -1}

	cmd := &cobra.Command{
		Use:   "edit FILE",
		Short: "Edit an outline file in place",
		Long: `Edit one field of one slide, the outline title, or the slide list.
Bullet points take one entry per line or "a|b|c"; data points take a
YAML/JSON list such as '[{label: Q1, value: 10}]'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd.OutOrStdout(), args[0], f, cmd.Flags().Changed("title"))
		},
	}
	cmd.Flags().IntVar(&f.slide, "slide", -1, "Zero-based index of the slide to edit")
	cmd.Flags().StringVar(&f.field, "field", "", "Field to set: "+strings.Join(fieldNames(), ", "))
	cmd.Flags().StringVar(&f.value, "value", "", "New value for the field (or the title of an inserted slide)")
	cmd.Flags().StringVar(&f.title, "title", "", "Set the outline title")
	cmd.Flags().IntVar(&f.insert, "insert", -1, "Insert a new slide at this index")
	cmd.Flags().IntVar(&f.delete, "delete", -1, "Delete the slide at this index")
	cmd.Flags().StringVar(&f.move, "move", "", "Move a slide, FROM:TO")
	cmd.MarkFlagsMutuallyExclusive("field", "insert", "delete", "move")
	return cmd
}

func runEdit(out io.Writer, path string, f editFlags, setTitle bool) error {
	before, err := writer.LoadOutline(path)
	if err != nil {
		return err
	}
	after := before.Clone()

	if setTitle {
		after = outline.SetTitle(after, f.title)
	}

	switch {
	case f.field != "":
		if f.slide < 0 {
			return fmt.Errorf("--field requires --slide")
		}
		field, err := outline.ParseField(f.field)
		if err != nil {
			return err
		}
		value, err := outline.ParseValue(field, f.value)
		if err != nil {
			return err
		}
		if after, err = outline.SetSlideField(after, f.slide, field, value); err != nil {
			return err
		}
	case f.insert >= 0:
		if after, err = outline.InsertSlide(after, f.insert, models.Slide{Title: f.value}); err != nil {
			return err
		}
	case f.delete >= 0:
		if after, err = outline.DeleteSlide(after, f.delete); err != nil {
			return err
		}
	case f.move != "":
		from, to, err := parseMove(f.move)
		if err != nil {
			return err
		}
		if after, err = outline.MoveSlide(after, from, to); err != nil {
			return err
		}
	case !setTitle:
		return fmt.Errorf("nothing to edit: pass --title, --field, --insert, --delete or --move")
	}

	changes := outline.Diff(before, after)
	if len(changes) == 0 {
		fmt.Fprintln(out, "No changes")
		return nil
	}
	for _, c := range changes {
		fmt.Fprintln(out, c.String())
	}
	return writer.SaveOutline(path, after)
}

func parseMove(s string) (int, int, error) {
	fromText, toText, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid --move %q: expected FROM:TO", s)
	}
	from, err := strconv.Atoi(strings.TrimSpace(fromText))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid --move source: %w", err)
	}
	to, err := strconv.Atoi(strings.TrimSpace(toText))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid --move destination: %w", err)
	}
	return from, to, nil
}

func fieldNames() []string {
	names := make([]string, len(outline.Fields))
	for i, f := range outline.Fields {
		names[i] = string(f)
	}
	return names
}

type renderFlags struct {
	theme    string
	template string
}

func (f *renderFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.theme, "theme", "", "Theme: business, tech or creative (default from config)")
	cmd.Flags().StringVar(&f.template, "template", "", "Custom .pptx template to upload and use")
}

// renderAndDownload renders the orchestrator's current outline and saves the deck
func renderAndDownload(ctx context.Context, a *app, f *renderFlags) (string, error) {
	if f.template != "" {
		upload, err := api.LoadUpload(f.template)
		if err != nil {
			return "", err
		}
		if err := a.orch.UploadTemplate(ctx, upload); err != nil {
			return "", fmt.Errorf("template upload failed: %s", api.Message(err))
		}
	}

	if err := a.orch.RequestRender(ctx, f.theme, ""); err != nil {
		return "", fmt.Errorf("render request failed: %s", api.Message(err))
	}

	job, err := awaitJob(ctx, a.orch, "Rendering", generationSlot)
	if err != nil {
		return "", err
	}

	name := "presentation.pptx"
	if doc := a.orch.State().Outline; doc != nil && doc.Title != "" {
		name = doc.Title + ".pptx"
	}
	return a.downloader.Fetch(ctx, job.ID, name)
}

func newRenderCmd() *cobra.Command {
	var f renderFlags

	cmd := &cobra.Command{
		Use:   "render FILE",
		Short: "Render an outline file into a presentation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				doc, err := writer.LoadOutline(args[0])
				if err != nil {
					return err
				}
				if err := a.orch.LoadOutline(doc); err != nil {
					return err
				}
				path, err := renderAndDownload(ctx, a, &f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newConvertCmd() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "convert FILE",
		Short: "Convert a document to another format",
		Long: `Convert a document with the backend converter. Supported pairs:
ppt/pptx -> pdf, doc/docx -> pdf, pdf -> docx, doc, pptx, ppt.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				upload, err := api.LoadUpload(args[0])
				if err != nil {
					return err
				}
				if err := a.orch.SetMode(orchestrator.ModeConvert); err != nil {
					return err
				}
				if err := a.orch.RequestConversion(ctx, upload, target); err != nil {
					return fmt.Errorf("conversion request failed: %s", api.Message(err))
				}

				job, err := awaitJob(ctx, a.orch, "Converting", conversionSlot)
				if err != nil {
					return err
				}

				format := target
				if format == "" {
					format = a.cfg.Defaults.TargetFormat
				}
				stem := strings.TrimSuffix(upload.Filename, filepath.Ext(upload.Filename))
				path, err := a.downloader.Fetch(ctx, job.ID, stem+"."+models.NormalizeFormat(format))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&target, "to", "", "Target format (default from config)")
	return cmd
}

func newTemplateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage custom templates",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a .pptx template and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				upload, err := api.LoadUpload(args[0])
				if err != nil {
					return err
				}
				if err := a.orch.UploadTemplate(ctx, upload); err != nil {
					return fmt.Errorf("template upload failed: %s", api.Message(err))
				}
				ref := a.orch.State().Template
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", ref.ID, ref.Filename)
				return nil
			})
		},
	})
	return cmd
}

func newRunCmd() *cobra.Command {
	var of outlineFlags
	var rf renderFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate an outline and render it in one go",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				doc, outlinePath, err := generateOutline(ctx, a, &of, cmd.InOrStdin(), "")
				if err != nil {
					return err
				}
				printOutline(cmd.OutOrStdout(), doc)

				path, err := renderAndDownload(ctx, a, &rf)
				if err != nil {
					return fmt.Errorf("%w (outline kept at %s)", err, outlinePath)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\nOutline: %s\nDeck:    %s\n", outlinePath, path)
				return nil
			})
		},
	}
	of.register(cmd)
	rf.register(cmd)
	return cmd
}

func newConfigCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	initCmd := &cobra.Command{
		Use:   "init [PATH]",
		Short: "Write a default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GetDefaultConfigTOML()), 0644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}

func printOutline(w io.Writer, doc models.Outline) {
	fmt.Fprintf(w, "%s\n", doc.Title)
	for i, s := range doc.Slides {
		fmt.Fprintf(w, "%3d. %-40s [%s]\n", i, s.Title, s.Layout)
		for _, b := range s.BulletPoints {
			fmt.Fprintf(w, "       - %s\n", b)
		}
	}
}
