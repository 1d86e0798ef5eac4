package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cascadalang/cascada"
	"github.com/cascadalang/cascada/internal/value"
)

func renderCmd() *cobra.Command {
	var (
		dataFile string
		isScript bool
		focus    string
	)

	cmd := &cobra.Command{
		Use:   "render <template>",
		Short: "Render a template or script file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			src, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %q: %w", path, err)
			}

			env, err := loadEnvironment()
			if err != nil {
				return err
			}

			ctxVars, err := loadDataFile(dataFile)
			if err != nil {
				return err
			}

			ctx := context.Background()
			var result *cascada.Result
			if isScript {
				result, err = env.RenderScript(ctx, string(src), ctxVars, focus)
			} else {
				result, err = env.RenderString(ctx, string(src), ctxVars, focus)
			}
			if err != nil {
				return err
			}

			if focus != "" {
				fmt.Println(result.Value().String())
				return nil
			}
			fmt.Print(result.Text())
			return nil
		},
	}

	cmd.Flags().StringVar(&dataFile, "data", "", "YAML file decoded into the render context")
	cmd.Flags().BoolVar(&isScript, "script", false, "Treat the input as Cascada's script syntax instead of templates")
	cmd.Flags().StringVar(&focus, "focus", "", "Print only the named handler's value instead of the text output")

	return cmd
}

func loadEnvironment() (*cascada.Environment, error) {
	if configFile == "" {
		return cascada.New(), nil
	}
	cfg, err := cascada.LoadEnvironmentConfig(configFile)
	if err != nil {
		return nil, err
	}
	return cascada.NewEnvironmentFromConfig(cfg), nil
}

func loadDataFile(path string) (map[string]value.Value, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}
	var decoded map[string]any
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("parsing %q: %w", path, err)
	}
	out := make(map[string]value.Value, len(decoded))
	for k, v := range decoded {
		out[k] = fromGo(v)
	}
	return out, nil
}

// fromGo converts a yaml.Unmarshal-produced Go value into value.Value.
func fromGo(v any) value.Value {
	switch v := v.(type) {
	case nil:
		return value.Null{}
	case string:
		return value.Str(v)
	case bool:
		return value.Bool(v)
	case int:
		return value.Num(v)
	case int64:
		return value.Num(v)
	case float64:
		return value.Num(v)
	case []any:
		items := make([]value.Value, len(v))
		for i, item := range v {
			items[i] = fromGo(item)
		}
		return value.NewList(items...)
	case map[string]any:
		d := value.NewDict()
		for k, item := range v {
			d.Set(k, fromGo(item))
		}
		return d
	case map[any]any:
		d := value.NewDict()
		for k, item := range v {
			d.Set(fmt.Sprintf("%v", k), fromGo(item))
		}
		return d
	default:
		return value.Str(fmt.Sprintf("%v", v))
	}
}
