package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quotaward/quotaward/internal/output"
)

type outputSink struct {
	writer io.Writer
	close  func() error
	path   string
}

// addOutputFlags registers the shared --output-format, --out and --out-dir flags.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json")
	cmd.Flags().String("out", "", "Write output to a file (default stdout)")
	cmd.Flags().String("out-dir", "", "Write output to a directory")
}

func resolveOutputFormat(cmd *cobra.Command) (output.Format, error) {
	value, err := cmd.Flags().GetString("output-format")
	if err != nil {
		return "", err
	}
	return output.ParseFormat(value)
}

func resolveOutputTargets(cmd *cobra.Command) (outPath string, outDir string, err error) {
	outPath, err = cmd.Flags().GetString("out")
	if err != nil {
		return "", "", err
	}
	outDir, err = cmd.Flags().GetString("out-dir")
	if err != nil {
		return "", "", err
	}
	if strings.TrimSpace(outPath) != "" && strings.TrimSpace(outDir) != "" {
		return "", "", fmt.Errorf("--out and --out-dir are mutually exclusive")
	}
	return strings.TrimSpace(outPath), strings.TrimSpace(outDir), nil
}

// openCommandSink resolves the output flags of cmd. With --out-dir the file
// is named <base>.<ext>.
func openCommandSink(cmd *cobra.Command, base string) (output.Format, *outputSink, error) {
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return "", nil, err
	}
	outPath, outDir, err := resolveOutputTargets(cmd)
	if err != nil {
		return "", nil, err
	}
	if outDir != "" {
		dir, err := ensureOutDir(outDir)
		if err != nil {
			return "", nil, err
		}
		outPath = filepath.Join(dir, fmt.Sprintf("%s.%s", base, format.Extension()))
	}

	sink, err := openSink(outPath, cmd.OutOrStdout())
	if err != nil {
		return "", nil, err
	}
	return format, sink, nil
}

// writeRendered writes v as JSON, or the table produced by table.
func writeRendered(w io.Writer, format output.Format, v any, table func() string) error {
	if format == output.FormatJSON {
		payload, err := output.JSON(v)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, payload)
		return err
	}
	_, err := fmt.Fprintln(w, table())
	return err
}

func openSink(path string, stdout io.Writer) (*outputSink, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || trimmed == "-" {
		return &outputSink{writer: stdout, close: func() error { return nil }, path: "-"}, nil
	}

	if err := os.MkdirAll(filepath.Dir(trimmed), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(trimmed) // #nosec G304 -- path chosen by the operator
	if err != nil {
		return nil, err
	}
	return &outputSink{writer: file, close: file.Close, path: trimmed}, nil
}

func ensureOutDir(dir string) (string, error) {
	clean := strings.TrimSpace(dir)
	if clean == "" {
		return "", nil
	}
	if err := os.MkdirAll(clean, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return clean, nil
	}
	return abs, nil
}
