package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/snipvault/internal/errors"
	"github.com/hpungsan/snipvault/internal/ops"
	"github.com/hpungsan/snipvault/internal/web"
)

// newCLIApp creates the CLI application with all commands.
// v may be nil when only help or version output is needed.
func newCLIApp(v *ops.Vault) *cli.App {
	app := &cli.App{
		Name:    "snipvault",
		Usage:   "Folders, screen captures, highlights and annotations for study documents",
		Version: Version,
		Commands: []*cli.Command{
			folderCmd(v),
			docCmd(v),
			captureCmd(v),
			derivedCmd(v),
			annotationCmd(v),
			exportCmd(v),
			importCmd(v),
			statusCmd(v),
			serveCmd(v),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// folderCmd creates the folder command group.
func folderCmd(v *ops.Vault) *cli.Command {
	return &cli.Command{
		Name:  "folder",
		Usage: "Manage folders",
		Subcommands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Register a folder and create its directory",
				ArgsUsage: "<name>",
				Action: func(c *cli.Context) error {
					out, err := ops.CreateFolder(c.Context, v, ops.CreateFolderInput{Name: strings.Join(c.Args().Slice(), " ")})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, out)
				},
			},
			{
				Name:  "list",
				Usage: "List folders with file counts",
				Action: func(c *cli.Context) error {
					out, err := ops.ListFolders(c.Context, v)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, out)
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a folder's directory tree and record",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					out, err := ops.DeleteFolder(c.Context, v, ops.DeleteFolderInput{ID: c.Args().First()})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, out)
				},
			},
		},
	}
}

// docCmd creates the doc command group.
func docCmd(v *ops.Vault) *cli.Command {
	return &cli.Command{
		Name:  "doc",
		Usage: "Store and list documents",
		Subcommands: []*cli.Command{
			{
				Name:      "upload",
				Usage:     "Copy a local file into a folder",
				ArgsUsage: "<path>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "folder", Aliases: []string{"f"}, Usage: "Destination folder (default: storage root)"},
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Stored filename (default: source basename)"},
				},
				Action: func(c *cli.Context) error {
					src := c.Args().First()
					if src == "" {
						return outputError(errors.NewInvalidRequest("path is required"))
					}
					f, err := os.Open(src)
					if err != nil {
						return outputError(errors.NewInvalidRequest(fmt.Sprintf("cannot open %s: %v", src, err)))
					}
					defer f.Close()

					name := c.String("name")
					if name == "" {
						name = filepath.Base(src)
					}
					out, err := ops.UploadDocument(c.Context, v, ops.UploadDocumentInput{
						Folder:   c.String("folder"),
						Filename: name,
						Body:     f,
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, out)
				},
			},
			{
				Name:  "list",
				Usage: "List documents in a folder",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "folder", Aliases: []string{"f"}, Usage: "Folder name (default: storage root)"},
					&cli.StringFlag{Name: "ext", Usage: "Extension to list", Value: ops.DocumentExt},
				},
				Action: func(c *cli.Context) error {
					out, err := ops.ListDocuments(c.Context, v, ops.ListDocumentsInput{
						Folder: c.String("folder"),
						Ext:    c.String("ext"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, out)
				},
			},
		},
	}
}

// captureCmd creates the capture command group.
func captureCmd(v *ops.Vault) *cli.Command {
	return &cli.Command{
		Name:  "capture",
		Usage: "Acquire and manage screen captures",
		Subcommands: []*cli.Command{
			{
				Name:  "acquire",
				Usage: "Launch the capture tool and store the next screenshot in a folder",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "folder", Aliases: []string{"f"}, Required: true, Usage: "Destination folder"},
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Title (default: stored filename)"},
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Description"},
					&cli.StringFlag{Name: "timestamp", Usage: "Capture timestamp to record"},
					&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Do not print state transitions"},
				},
				Action: func(c *cli.Context) error {
					input := ops.AcquireInput{
						Folder:      c.String("folder"),
						Title:       c.String("title"),
						Description: c.String("description"),
						CapturedAt:  c.String("timestamp"),
					}
					if !c.Bool("quiet") {
						input.OnState = func(st ops.CaptureState) {
							fmt.Fprintf(c.App.ErrWriter, "capture: %s\n", st)
						}
					}
					out, err := ops.AcquireCapture(c.Context, v, input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, out)
				},
			},
			{
				Name:  "list",
				Usage: "List captures, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "folder", Aliases: []string{"f"}, Usage: "Only this folder"},
				},
				Action: func(c *cli.Context) error {
					out, err := ops.ListCaptures(c.Context, v, ops.ListCapturesInput{Folder: c.String("folder")})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, out)
				},
			},
			{
				Name:      "get",
				Usage:     "Show one capture",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					out, err := ops.GetCapture(c.Context, v, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, out)
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a capture's image and record",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					out, err := ops.DeleteCapture(c.Context, v, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, out)
				},
			},
		},
	}
}

// derivedCmd creates the derived command group.
func derivedCmd(v *ops.Vault) *cli.Command {
	return &cli.Command{
		Name:  "derived",
		Usage: "Create and read highlighted derived documents",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Render highlights to HTML (reads a JSON array of highlights from stdin or --highlights)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "folder", Aliases: []string{"f"}, Required: true, Usage: "Destination folder"},
					&cli.StringFlag{Name: "source", Aliases: []string{"s"}, Usage: "Source document filename"},
					&cli.StringFlag{Name: "source-ref", Usage: "Source document path or URL"},
					&cli.StringFlag{Name: "highlights", Usage: "File holding the JSON highlights array"},
					&cli.StringFlag{Name: "body", Usage: "Markdown file rendered into the page"},
				},
				Action: func(c *cli.Context) error {
					raw, err := readInput(c.String("highlights"))
					if err != nil {
						return outputError(err)
					}
					var highlights []json.RawMessage
					if err := json.Unmarshal(raw, &highlights); err != nil {
						return outputError(errors.NewInvalidRequest(fmt.Sprintf("highlights must be a JSON array: %v", err)))
					}

					var body string
					if path := c.String("body"); path != "" {
						b, err := os.ReadFile(path)
						if err != nil {
							return outputError(errors.NewInvalidRequest(fmt.Sprintf("cannot read %s: %v", path, err)))
						}
						body = string(b)
					}

					out, err := ops.CreateDerived(c.Context, v, ops.CreateDerivedInput{
						SourceFilename:  c.String("source"),
						Folder:          c.String("folder"),
						Highlights:      highlights,
						RenderedBody:    body,
						SourceReference: c.String("source-ref"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, out)
				},
			},
			{
				Name:  "list",
				Usage: "List derived documents in creation order",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "folder", Aliases: []string{"f"}, Usage: "Only this folder"},
				},
				Action: func(c *cli.Context) error {
					out, err := ops.ListDerived(c.Context, v, ops.ListDerivedInput{Folder: c.String("folder")})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, out)
				},
			},
			{
				Name:      "get",
				Usage:     "Show one derived document record",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					out, err := ops.GetDerived(c.Context, v, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, out)
				},
			},
			{
				Name:      "fetch",
				Usage:     "Print the rendered HTML",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					f, err := ops.FetchRendered(c.Context, v, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					defer f.Close()
					if _, err := io.Copy(c.App.Writer, f); err != nil {
						return outputError(errors.NewInternal(err))
					}
					return nil
				},
			},
		},
	}
}

// annotationCmd creates the annotation command group.
func annotationCmd(v *ops.Vault) *cli.Command {
	return &cli.Command{
		Name:  "annotation",
		Usage: "Append and list document annotations",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Append an annotation (body from arguments or stdin)",
				ArgsUsage: "<document> [body...]",
				Action: func(c *cli.Context) error {
					body := strings.Join(c.Args().Tail(), " ")
					if body == "" {
						b, err := readInput("")
						if err != nil {
							return outputError(err)
						}
						body = strings.TrimSpace(string(b))
					}
					out, err := ops.AppendAnnotation(c.Context, v.DB, ops.AppendAnnotationInput{
						DocumentName: c.Args().First(),
						Body:         body,
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, out)
				},
			},
			{
				Name:      "list",
				Usage:     "List annotations of a document",
				ArgsUsage: "<document>",
				Action: func(c *cli.Context) error {
					out, err := ops.ListAnnotations(c.Context, v.DB, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, out)
				},
			},
		},
	}
}

// exportCmd creates the export command.
func exportCmd(v *ops.Vault) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export folders, captures and derived documents as flat JSON files",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Usage: "Export directory (default: ~/.snipvault/exports/<timestamp>)"},
		},
		Action: func(c *cli.Context) error {
			out, err := ops.ExportCollections(c.Context, v, ops.ExportInput{Dir: c.String("dir")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, out)
		},
	}
}

// importCmd creates the import command.
func importCmd(v *ops.Vault) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import flat JSON collection files",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Required: true, Usage: "Directory holding the collection files"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "error", Usage: "Collision mode: error|replace|skip"},
		},
		Action: func(c *cli.Context) error {
			out, err := ops.ImportCollections(c.Context, v, ops.ImportInput{
				Dir:  c.String("dir"),
				Mode: ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, out)
		},
	}
}

// statusCmd creates the status command.
func statusCmd(v *ops.Vault) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show storage locations and record counts",
		Action: func(c *cli.Context) error {
			out, err := ops.Status(c.Context, v)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, out)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(v *ops.Vault) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Aliases: []string{"b"}, Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 5000, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv := web.NewServer(v, c.String("bind"), c.Int("port"))
			return web.Run(srv, v.Log)
		},
	}
}

// Helper functions

// outputJSON writes v to the app's writer as indented JSON.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var vErr *errors.VaultError
	if stderrors.As(err, &vErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", vErr.Code, vErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdin is swapped in tests.
var stdin io.Reader = os.Stdin

// readInput reads path, or piped stdin when path is empty or "-".
func readInput(path string) ([]byte, error) {
	if path != "" && path != "-" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot read %s: %v", path, err))
		}
		return b, nil
	}
	if f, ok := stdin.(*os.File); ok && !stdinHasData(f) {
		return nil, errors.NewInvalidRequest("input must be piped via stdin or given as a file")
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return b, nil
}

// stdinHasData returns true if f is piped (not a terminal).
func stdinHasData(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}
