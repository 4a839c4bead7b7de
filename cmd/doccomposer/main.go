// Command doccomposer drives the document-composition service from
// the command line: merge, extract, split, compress, image embedding,
// markdown import, text extraction, and OCR.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wudi/doccomposer/config"
	"github.com/wudi/doccomposer/embed"
	"github.com/wudi/doccomposer/observability"
	"github.com/wudi/doccomposer/ocr/tesseract"
	"github.com/wudi/doccomposer/raster"
	"github.com/wudi/doccomposer/service"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type app struct {
	cfg config.Config
	svc *service.Service
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	var verbose bool
	a := &app{}

	root := &cobra.Command{
		Use:           "doccomposer",
		Short:         "Compose, split, and convert paginated documents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := observability.NewSlogLogger(slog.New(
				slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			embedder := embed.New(raster.NewCodec(),
				embed.WithQuality(cfg.JPEGQuality),
				embed.WithLogger(logger))
			a.svc = service.New(
				service.WithEmbedder(embedder),
				service.WithOCREngine(tesseract.New()),
				service.WithLogger(logger))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "doccomposer.toml", "path to the TOML config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newMergeCmd(a),
		newExtractCmd(a),
		newSplitCmd(a),
		newCompressCmd(a),
		newImagesCmd(a),
		newMarkdownCmd(a),
		newTextCmd(a),
		newOCRCmd(a),
	)
	return root
}

func newMergeCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "merge <input.pdf>...",
		Short: "Concatenate documents in the given order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := a.readInputs(args)
			if err != nil {
				return err
			}
			resp, err := a.svc.Merge(cmd.Context(), service.MergeRequest{Inputs: inputs})
			if err != nil {
				return err
			}
			return writeOutput(cmd, out, resp.Data, resp.PageCount)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "merged.pdf", "output file")
	return cmd
}

func newExtractCmd(a *app) *cobra.Command {
	var out, pages string
	cmd := &cobra.Command{
		Use:   "extract <input.pdf>",
		Short: "Select pages into a new document, in the order given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			indices, err := parseIndices(pages)
			if err != nil {
				return err
			}
			input, err := a.readInput(args[0])
			if err != nil {
				return err
			}
			resp, err := a.svc.Extract(cmd.Context(), service.ExtractRequest{Input: input, Indices: indices})
			if err != nil {
				return err
			}
			return writeOutput(cmd, out, resp.Data, resp.PageCount)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "extracted.pdf", "output file")
	cmd.Flags().StringVarP(&pages, "pages", "p", "", "comma-separated zero-based page indices (required)")
	_ = cmd.MarkFlagRequired("pages")
	return cmd
}

func newSplitCmd(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "split <input.pdf>",
		Short: "Write each page to its own single-page document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := a.readInput(args[0])
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			// Probe the page count with a full-document compress pass.
			probe, err := a.svc.Compress(cmd.Context(), service.CompressRequest{Input: input})
			if err != nil {
				return err
			}
			for i := 0; i < probe.PageCount; i++ {
				resp, err := a.svc.Extract(cmd.Context(), service.ExtractRequest{Input: input, Indices: []int{i}})
				if err != nil {
					return err
				}
				path := filepath.Join(dir, fmt.Sprintf("page_%d.pdf", i+1))
				if err := os.WriteFile(path, resp.Data, 0o644); err != nil {
					return err
				}
				cmd.Printf("Wrote %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "split", "output directory")
	return cmd
}

func newCompressCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "compress <input.pdf>",
		Short: "Re-serialize a document and report the size delta",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := a.readInput(args[0])
			if err != nil {
				return err
			}
			resp, err := a.svc.Compress(cmd.Context(), service.CompressRequest{Input: input})
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, resp.Data, 0o644); err != nil {
				return err
			}
			cmd.Printf("Wrote %s (%d -> %d bytes, %.1f%%)\n", out, resp.OriginalBytes, resp.OutputBytes, resp.Ratio)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "compressed.pdf", "output file")
	return cmd
}

func newImagesCmd(a *app) *cobra.Command {
	var out, size string
	var margin float64
	cmd := &cobra.Command{
		Use:   "images <image>...",
		Short: "Build a document with one page per image",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files := make([]embed.UploadedFile, 0, len(args))
			for _, path := range args {
				data, err := a.readFile(path)
				if err != nil {
					return err
				}
				files = append(files, embed.UploadedFile{
					Name:     filepath.Base(path),
					MIMEType: mimeForExt(path),
					Data:     data,
				})
			}
			resp, err := a.svc.EmbedImages(cmd.Context(), service.EmbedImagesRequest{
				Files:    files,
				PageSize: size,
				Margin:   margin,
			})
			if err != nil {
				return err
			}
			return writeOutput(cmd, out, resp.Data, resp.PageCount)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "images.pdf", "output file")
	cmd.Flags().StringVar(&size, "page-size", "", "page size name (default from config)")
	cmd.Flags().Float64Var(&margin, "margin", -1, "page margin in points (default from config)")
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		if size == "" {
			size = a.cfg.PageSize
		}
		if margin < 0 {
			margin = a.cfg.Margin
		}
	}
	return cmd
}

func newMarkdownCmd(a *app) *cobra.Command {
	var out, size string
	cmd := &cobra.Command{
		Use:   "md <input.md>",
		Short: "Render a markdown file into a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.readFile(args[0])
			if err != nil {
				return err
			}
			if size == "" {
				size = a.cfg.PageSize
			}
			resp, err := a.svc.ImportMarkdown(cmd.Context(), service.MarkdownRequest{
				Source:   string(data),
				PageSize: size,
				Margin:   a.cfg.Margin,
			})
			if err != nil {
				return err
			}
			return writeOutput(cmd, out, resp.Data, resp.PageCount)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "document.pdf", "output file")
	cmd.Flags().StringVar(&size, "page-size", "", "page size name (default from config)")
	return cmd
}

func newTextCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "text <input.pdf>",
		Short: "Print the text runs of each page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := a.readInput(args[0])
			if err != nil {
				return err
			}
			resp, err := a.svc.ExtractText(cmd.Context(), service.ExtractTextRequest{Input: input})
			if err != nil {
				return err
			}
			for i, page := range resp.Pages {
				cmd.Printf("--- page %d ---\n%s\n", i+1, page)
			}
			return nil
		},
	}
	return cmd
}

func newOCRCmd(a *app) *cobra.Command {
	var langs []string
	cmd := &cobra.Command{
		Use:   "ocr <image>",
		Short: "Recognize text in a raster image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.readFile(args[0])
			if err != nil {
				return err
			}
			if len(langs) == 0 {
				langs = a.cfg.OCRLanguages
			}
			result, err := a.svc.Recognize(cmd.Context(), service.RecognizeRequest{
				File: embed.UploadedFile{
					Name:     filepath.Base(args[0]),
					MIMEType: mimeForExt(args[0]),
					Data:     data,
				},
				Languages: langs,
			})
			if err != nil {
				return err
			}
			cmd.Println(result.PlainText)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&langs, "lang", nil, "language hints (e.g. eng,deu)")
	return cmd
}

func (a *app) readInputs(paths []string) ([]service.NamedBuffer, error) {
	inputs := make([]service.NamedBuffer, 0, len(paths))
	for _, path := range paths {
		in, err := a.readInput(path)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func (a *app) readInput(path string) (service.NamedBuffer, error) {
	data, err := a.readFile(path)
	if err != nil {
		return service.NamedBuffer{}, err
	}
	return service.NamedBuffer{Name: filepath.Base(path), Data: data}, nil
}

func (a *app) readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if a.cfg.MaxUploadBytes > 0 && info.Size() > a.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%s exceeds the configured size limit (%d bytes)", path, a.cfg.MaxUploadBytes)
	}
	return os.ReadFile(path)
}

func writeOutput(cmd *cobra.Command, path string, data []byte, pages int) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	cmd.Printf("Wrote %s (%d pages, %d bytes)\n", path, pages, len(data))
	return nil
}

func parseIndices(spec string) ([]int, error) {
	parts := strings.Split(spec, ",")
	indices := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("bad page index %q", part)
		}
		indices = append(indices, n)
	}
	return indices, nil
}

func mimeForExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
