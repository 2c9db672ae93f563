package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/harun/toolshed/pkg/catalog"
	"github.com/harun/toolshed/pkg/coercion"
	"github.com/harun/toolshed/pkg/jsvalue"
	"github.com/harun/toolshed/pkg/render"
	"github.com/harun/toolshed/pkg/sandbox"
	"github.com/harun/toolshed/pkg/toolexecutor"
)

var (
	runArgs    []string
	runRaw     bool
	runNoColor bool
)

var runCmd = &cobra.Command{
	Use:   "run <id>",
	Short: "Run a tool in the terminal",
	Long: `Run a tool with positional arguments and print its result.
Each --arg fills the next input; missing inputs take their defaults.
For file inputs, --arg @path reads the file as a data URL.`,
	Example: `  toolshed run 3 --arg 21
  toolshed run 7 --arg "hello world" --arg true
  toolshed run 9 --arg @photo.png`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringArrayVar(&runArgs, "arg", nil, "input value, repeat once per input")
	runCmd.Flags().BoolVar(&runRaw, "raw", false, "print the result as JSON")
	runCmd.Flags().BoolVar(&runNoColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	tools, err := fetchTools(ctx)
	if err != nil {
		return err
	}
	tool, ok := catalog.NewRegistry(tools...).Get(catalog.ID(args[0]))
	if !ok {
		return fmt.Errorf("%w: %s", catalog.ErrToolNotFound, args[0])
	}

	raw, err := rawInputs(tool.Inputs, runArgs)
	if err != nil {
		return err
	}

	result, err := execute(ctx, tool, raw)
	if err != nil {
		return fmt.Errorf("%s (%s)", toolexecutor.ErrorMessage(err), toolexecutor.ErrorKind(err))
	}

	out := cmd.OutOrStdout()
	if runRaw {
		text, err := jsvalue.Stringify(result)
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		_, err = fmt.Fprintln(out, text)
		return err
	}

	return render.WriteText(out, render.Classify(result), render.TextOptions{
		Color: !runNoColor && !color.NoColor,
	})
}

// rawInputs fills the tool's defaults with the given arguments in order
func rawInputs(specs []catalog.InputSpec, values []string) ([]any, error) {
	if len(values) > len(specs) {
		return nil, fmt.Errorf("too many arguments: tool takes %d, got %d", len(specs), len(values))
	}

	raw := coercion.Defaults(specs)
	for i, v := range values {
		if specs[i].Type == catalog.InputFile && strings.HasPrefix(v, "@") {
			url, err := dataURL(strings.TrimPrefix(v, "@"))
			if err != nil {
				return nil, err
			}
			raw[i] = url
			continue
		}
		raw[i] = v
	}
	return raw, nil
}

// dataURL reads a file the way the browser's file input does
func dataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read input file: %w", err)
	}
	mime := http.DetectContentType(data)
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func execute(ctx context.Context, tool catalog.Tool, raw []any) (any, error) {
	sandboxCfg := cfg.SandboxConfig()
	rt, err := sandbox.New(sandboxCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime: %w", err)
	}
	if err := rt.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start runtime: %w", err)
	}
	defer rt.Stop(context.Background())

	engine := toolexecutor.New(rt, toolexecutor.WithTimeout(sandboxCfg.Timeout))
	ctx = toolexecutor.ContextWithExecContext(ctx, &toolexecutor.ExecutionContext{
		SessionID: uuid.NewString(),
		Source:    "cli",
	})
	return engine.Run(ctx, tool, raw)
}
