package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cli "github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"z-novel-forge/internal/application/story/orchestrator"
	"z-novel-forge/internal/domain/entity"
	"z-novel-forge/internal/domain/repository"
	"z-novel-forge/internal/wire"
)

func listCmd() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List projects, most recently updated first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "page", Value: 1},
			&cli.IntFlag{Name: "page-size", Value: 20},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withCore(ctx, cmd, func(ctx context.Context, core *wire.Core) error {
				result, err := core.Orchestrator.ListProjects(ctx,
					repository.NewPagination(int(cmd.Int("page")), int(cmd.Int("page-size"))))
				if err != nil {
					return err
				}
				for _, p := range result.Items {
					fmt.Printf("%s  %-18s  ch %d/%d  %s\n", p.ID, p.Phase, p.CurrentChapterProcessing, p.TargetChapterCount, p.Title)
				}
				fmt.Printf("%d of %d projects\n", len(result.Items), result.Total)
				return nil
			})
		},
	}
}

func createCmd() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create a project from an idea file (JSON or YAML)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "idea-file", Required: true, Usage: "File with title, idea and optional sourceData"},
			&cli.StringFlag{Name: "model", Usage: "Model identifier, e.g. deepseek/deepseek-chat"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var req orchestrator.CreateProjectRequest
			if err := readDocument(cmd.String("idea-file"), &req); err != nil {
				return err
			}
			if m := cmd.String("model"); m != "" {
				req.Model = m
			}
			return withCore(ctx, cmd, func(ctx context.Context, core *wire.Core) error {
				p, err := core.Orchestrator.CreateProject(ctx, req)
				if err != nil {
					return err
				}
				fmt.Println(p.ID)
				return nil
			})
		},
	}
}

func showCmd() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a project's phase, chapters and recent system log",
		ArgsUsage: "<project-id>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "log", Value: 10, Usage: "Number of system log entries to print"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			projectID, err := requireArg(cmd, "project id")
			if err != nil {
				return err
			}
			return withCore(ctx, cmd, func(ctx context.Context, core *wire.Core) error {
				p, err := core.Orchestrator.GetProject(ctx, projectID)
				if err != nil {
					return err
				}
				printProject(p, int(cmd.Int("log")))
				return nil
			})
		},
	}
}

func opCmd() *cli.Command {
	return &cli.Command{
		Name:      "op",
		Usage:     "Run a single generation operation",
		ArgsUsage: "<operation> <project-id>",
		Description: "Operations: initial_plan, rewrite_initial_plan, chapter_plan, rewrite_chapter_plan, chapter_prose,\n" +
			"rewrite_chapter_prose, chapter_review, rewrite_review, revise_chapter, update_chapter_title, update_model, advance_cursor",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "chapter", Usage: "Chapter number"},
			&cli.StringFlag{Name: "context", Usage: "Feedback or rewrite instructions"},
			&cli.StringFlag{Name: "title"},
			&cli.StringFlag{Name: "model"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 2 {
				return fmt.Errorf("operation and project id are required")
			}
			req := orchestrator.OperationRequest{
				Operation: cmd.Args().Get(0),
				ProjectID: cmd.Args().Get(1),
				Chapter:   int(cmd.Int("chapter")),
				Context:   cmd.String("context"),
				Title:     cmd.String("title"),
				Model:     cmd.String("model"),
			}
			return withCore(ctx, cmd, func(ctx context.Context, core *wire.Core) error {
				if err := core.Orchestrator.Dispatch(ctx, req); err != nil {
					return err
				}
				p, err := core.Orchestrator.GetProject(ctx, req.ProjectID)
				if err != nil {
					return err
				}
				printProject(p, 3)
				return nil
			})
		},
	}
}

func stepCmd() *cli.Command {
	return &cli.Command{
		Name:      "step",
		Usage:     "Run exactly one Auto Mode step",
		ArgsUsage: "<project-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			projectID, err := requireArg(cmd, "project id")
			if err != nil {
				return err
			}
			return withCore(ctx, cmd, func(ctx context.Context, core *wire.Core) error {
				if err := core.Runner.Start(ctx, projectID); err != nil {
					return err
				}
				action, stepErr := core.Runner.Step(ctx, projectID)
				status := core.Runner.Status(projectID)
				if status.Active {
					_ = core.Runner.Stop(ctx, projectID)
				}
				fmt.Printf("action: %s\n", action)
				if status.Message != "" {
					fmt.Printf("status: %s\n", status.Message)
				}
				return stepErr
			})
		},
	}
}

func runCmd() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Drive Auto Mode until the novel completes or pauses",
		ArgsUsage: "[project-id]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Usage: "Import this project file first (useful with --storage memory)"},
			&cli.StringFlag{Name: "out", Usage: "Export the project here when the run stops"},
			&cli.StringFlag{Name: "format", Value: "json", Usage: "Export format: json or yaml"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withCore(ctx, cmd, func(ctx context.Context, core *wire.Core) error {
				projectID := cmd.Args().First()
				if file := cmd.String("file"); file != "" {
					p, err := importFile(ctx, core, file)
					if err != nil {
						return err
					}
					projectID = p.ID
				}
				if projectID == "" {
					return fmt.Errorf("project id or --file is required")
				}

				if err := core.Runner.Start(ctx, projectID); err != nil {
					return err
				}
				status := core.Runner.Drive(ctx, projectID, 0)
				if ctx.Err() != nil && status.Active {
					_ = core.Runner.Stop(context.WithoutCancel(ctx), projectID)
				}
				fmt.Printf("auto mode stopped: %s\n", status.Message)
				if status.LastError != "" {
					fmt.Printf("last error: %s\n", status.LastError)
				}

				if out := cmd.String("out"); out != "" {
					if err := exportTo(context.WithoutCancel(ctx), core, projectID, out, cmd.String("format")); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func exportCmd() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export a project document",
		ArgsUsage: "<project-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Value: "json", Usage: "json or yaml"},
			&cli.StringFlag{Name: "out", Usage: "Output file, stdout when empty"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			projectID, err := requireArg(cmd, "project id")
			if err != nil {
				return err
			}
			return withCore(ctx, cmd, func(ctx context.Context, core *wire.Core) error {
				return exportTo(ctx, core, projectID, cmd.String("out"), cmd.String("format"))
			})
		},
	}
}

func importCmd() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import a project file (JSON or YAML)",
		ArgsUsage: "<file>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			file, err := requireArg(cmd, "file")
			if err != nil {
				return err
			}
			return withCore(ctx, cmd, func(ctx context.Context, core *wire.Core) error {
				p, err := importFile(ctx, core, file)
				if err != nil {
					return err
				}
				fmt.Println(p.ID)
				return nil
			})
		},
	}
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	v := strings.TrimSpace(cmd.Args().First())
	if v == "" {
		return "", fmt.Errorf("%s argument is required", name)
	}
	return v, nil
}

func importFile(ctx context.Context, core *wire.Core, path string) (*entity.Project, error) {
	data, err := readAsJSON(path)
	if err != nil {
		return nil, err
	}
	return core.Orchestrator.ImportProject(ctx, data)
}

func exportTo(ctx context.Context, core *wire.Core, projectID, out, format string) error {
	data, err := core.Orchestrator.ExportProject(ctx, projectID)
	if err != nil {
		return err
	}
	switch format {
	case "json":
	case "yaml":
		if data, err = jsonToYAML(data); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported format %q", format)
	}

	if out == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(out, data, 0o644)
}

func printProject(p *entity.Project, logLines int) {
	fmt.Printf("%s  %q\n", p.ID, p.Title)
	fmt.Printf("phase: %s  chapter: %d/%d  model: %s\n",
		entity.DerivePhase(p), p.CurrentChapterProcessing, p.TargetChapterCount(), p.SelectedModel)
	for _, c := range p.Chapters {
		fmt.Printf("  %3d  %-40s plan:%s prose:%s review:%s\n",
			c.ChapterNumber, c.Title, mark(c.HasPlan()), mark(c.HasProse()), mark(c.HasReview()))
	}
	start := len(p.SystemLog) - logLines
	if start < 0 {
		start = 0
	}
	for _, e := range p.SystemLog[start:] {
		fmt.Printf("  > %s\n", e.Message)
	}
}

func mark(ok bool) string {
	if ok {
		return "y"
	}
	return "-"
}

// readDocument 读取 JSON 或 YAML 文件并按 JSON 字段名解码
func readDocument(path string, v any) error {
	data, err := readAsJSON(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func readAsJSON(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yamlToJSON(data)
	default:
		return data, nil
	}
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	return json.Marshal(doc)
}

func jsonToYAML(data []byte) ([]byte, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}
