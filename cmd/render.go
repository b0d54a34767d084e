package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ginja-dev/ginja/internal/errors"
)

var (
	renderContextFile string
	renderOutFile     string
	renderAsHTML      bool
)

var renderCmd = &cobra.Command{
	Use:   "render <template>",
	Short: "Render a template once and print the result",
	Long: `Render loads a template by name from the template directory, binds it
to the variables given in the context file and writes the rendered
output.

Examples:
  ginja render page.html
  ginja render page.html --context data.yml
  ginja render page.html --context data.yml --out page.out.html --html`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringVarP(&renderContextFile, "context", "c", "", "YAML file with template variables")
	renderCmd.Flags().StringVarP(&renderOutFile, "out", "o", "", "write output to file instead of stdout")
	renderCmd.Flags().BoolVar(&renderAsHTML, "html", false, "render through the DOM and serialize")
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}
	reg := newRegistry(cfg)
	tpl, err := reg.Get(args[0])
	if err != nil {
		return err
	}

	data, err := loadContextFile(renderContextFile)
	if err != nil {
		return err
	}

	var out string
	if renderAsHTML {
		out, err = tpl.RenderHTML(data)
	} else {
		out, err = tpl.RenderText(data)
	}
	if err != nil {
		return err
	}

	if renderOutFile == "" {
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	}
	if err := os.WriteFile(renderOutFile, []byte(out), 0o644); err != nil {
		return errors.NewIO("writing "+renderOutFile, err)
	}
	return nil
}

// loadContextFile reads a YAML mapping of template variables. An empty
// path yields an empty context.
func loadContextFile(path string) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIO("reading context file "+path, err)
	}
	var data map[string]any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, errors.NewConfig("parsing context file "+path, err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return normalizeYAML(data).(map[string]any), nil
}

// normalizeYAML converts YAML integers to the engine's float numbers and
// map[any]any keys to strings.
func normalizeYAML(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalizeYAML(val)
		}
		return out
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	default:
		return v
	}
}
