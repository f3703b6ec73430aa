package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"example.com/klvgate/internal/common"
	"example.com/klvgate/internal/config"
	"example.com/klvgate/internal/dict"
	"example.com/klvgate/internal/klv"
	"example.com/klvgate/internal/manifest"
	"example.com/klvgate/internal/patterns"
	"example.com/klvgate/internal/report"
	"example.com/klvgate/internal/store"
)

// analysis is what one analyze run produced.
type analysis struct {
	Report    report.Report
	Artifacts []string
	Manifest  string
	Digest    string
	Signature string
}

func analyzeCmd(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	in := fs.String("in", "", "input KLV stream")
	configPath := fs.String("config", defaultConfigPath, "configuration file")
	dictPath := fs.String("dict", "", "dictionary JSON file")
	strict := fs.Bool("strict", false, "stop at the first frame that fails to decode")
	concurrency := fs.Int("concurrency", 0, "decode workers (0 = NumCPU)")
	threshold := fs.Float64("altitude-threshold", patterns.DefaultAltitudeThreshold, "high-altitude pattern threshold in metres")
	formats := fs.String("formats", "", "comma-separated export formats: json,csv,txt,pdf,stac")
	outDir := fs.String("out-dir", "", "output directory")
	summaryOnly := fs.Bool("summary-only", false, "leave per-frame metadata out of the JSON report")
	metricsFile := fs.String("metrics", "", "write Prometheus textfile metrics here")
	progress := fs.Bool("progress", false, "print decode progress to stderr")
	signKey := fs.String("sign-key", "", "RSA private key (PEM) to sign the manifest")
	fs.Parse(args)

	if *in == "" {
		return fmt.Errorf("required: --in: %w", errUsage)
	}
	cfg, err := config.Load(config.Options{Path: *configPath, Required: *configPath != defaultConfigPath, DotEnv: []string{".env"}})
	if err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dict":
			cfg.Dictionary = *dictPath
		case "strict":
			cfg.Analysis.Strict = *strict
		case "concurrency":
			cfg.Analysis.Concurrency = *concurrency
		case "altitude-threshold":
			cfg.Analysis.AltitudeThreshold = *threshold
		case "formats":
			cfg.Export.Formats = splitList(*formats)
		case "out-dir":
			cfg.Export.OutDir = *outDir
		case "metrics":
			cfg.Metrics.Textfile = *metricsFile
		case "sign-key":
			cfg.Export.SignKey = *signKey
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, closer, err := common.SetupLogging(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	res, err := runAnalysis(cfg, *in, analyzeOptions{OmitFrames: *summaryOnly, Progress: *progress, Logger: logger})
	if err != nil {
		return err
	}
	rep := res.Report
	for _, f := range rep.Failures {
		fmt.Fprintf(os.Stderr, "frame %d: %s: %s\n", f.Index, f.Kind, f.Err)
	}
	fmt.Printf("Frames: %d decoded, %d failed\n", rep.FrameCount, len(rep.Failures))
	fmt.Printf("Matched: %s\n", strings.Join(rep.MatchedTemplates, ", "))
	fmt.Printf("Anomalies: %d\n", len(rep.Anomalies))
	for _, a := range res.Artifacts {
		fmt.Printf("Wrote %s\n", a)
	}
	if res.Manifest != "" {
		fmt.Printf("Manifest: %s (digest %s)\n", res.Manifest, res.Digest)
	}
	if res.Signature != "" {
		fmt.Printf("Signature: %s\n", res.Signature)
	}
	return nil
}

type analyzeOptions struct {
	OmitFrames bool
	Progress   bool
	Logger     zerolog.Logger
}

// runAnalysis decodes the stream at in and writes the configured exports,
// a manifest over them and the metrics textfile.
func runAnalysis(cfg config.Config, in string, opts analyzeOptions) (analysis, error) {
	logger := opts.Logger
	var res analysis

	d, err := dict.Resolve(cfg.Dictionary)
	if err != nil {
		return res, fmt.Errorf("dictionary: %w", err)
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return res, err
	}
	segs, split := klv.Split(data)
	if split.Resyncs > 0 || split.Truncated {
		logger.Warn().Int("resyncs", split.Resyncs).Int("skipped_bytes", split.SkippedBytes).Bool("truncated", split.Truncated).Msg("stream not contiguous")
	}

	metrics := common.NewMetrics()
	metrics.SetTotalBytes(int64(len(data)))
	metrics.AddResyncs(split.Resyncs)
	metrics.Start()
	stopProgress := func() {}
	if opts.Progress {
		stopProgress = common.StartProgressPrinter(os.Stderr, metrics, 500*time.Millisecond)
	}

	ctx, cancel := signalContext()
	defer cancel()
	s, err := store.Builder{
		Strict:      cfg.Analysis.Strict,
		Concurrency: cfg.Analysis.Concurrency,
		Codec:       klv.NewCodec(d),
		Logger:      logger,
		Metrics:     metrics,
	}.Build(ctx, store.InputsFromSegments(segs))
	metrics.Stop()
	stopProgress()
	if err != nil {
		return res, err
	}

	rep := report.Analyze(s, patterns.Builtins(cfg.Analysis.AltitudeThreshold), report.Options{
		Source:     filepath.Base(in),
		OmitFrames: opts.OmitFrames,
	})
	res.Report = rep
	logger.Info().
		Str("report_id", rep.ID).
		Int("frames", rep.FrameCount).
		Int("failures", len(rep.Failures)).
		Strs("matched", rep.MatchedTemplates).
		Int("anomalies", len(rep.Anomalies)).
		Msg("analysis complete")

	if err := os.MkdirAll(cfg.Export.OutDir, 0o755); err != nil {
		return res, err
	}
	base := filepath.Join(cfg.Export.OutDir, strings.TrimSuffix(filepath.Base(in), filepath.Ext(in)))
	write := func(path string, render func(*bytes.Buffer) error) error {
		var buf bytes.Buffer
		if err := render(&buf); err != nil {
			return fmt.Errorf("render %s: %w", filepath.Base(path), err)
		}
		if _, err := common.WriteFileIfChanged(path, buf.Bytes()); err != nil {
			return err
		}
		res.Artifacts = append(res.Artifacts, path)
		return nil
	}

	assets := map[string]string{"klv": in}
	if cfg.WantFormat("json") {
		p := base + ".report.json"
		if err := write(p, func(b *bytes.Buffer) error { return report.WriteJSON(b, rep) }); err != nil {
			return res, err
		}
		assets["json"] = filepath.Base(p)
	}
	if cfg.WantFormat("csv") {
		p := base + ".csv"
		if err := write(p, func(b *bytes.Buffer) error { return report.WriteCSV(b, s) }); err != nil {
			return res, err
		}
		assets["csv"] = filepath.Base(p)
	}
	if cfg.WantFormat("txt") {
		p := base + ".summary.txt"
		if err := write(p, func(b *bytes.Buffer) error { return report.WriteText(b, rep) }); err != nil {
			return res, err
		}
		assets["txt"] = filepath.Base(p)
	}
	pdfPath := ""
	if cfg.WantFormat("pdf") {
		pdfPath = base + ".report.pdf"
		assets["pdf"] = filepath.Base(pdfPath)
	}
	if cfg.WantFormat("stac") {
		p := base + ".stac.json"
		item := report.STACItem(rep, s, report.STACOptions{Collection: cfg.Export.STACCollection, Assets: assets})
		if err := report.SaveSTAC(item, p); err != nil {
			return res, err
		}
		res.Artifacts = append(res.Artifacts, p)
	}

	if len(res.Artifacts) > 0 || pdfPath != "" {
		m, err := manifest.Build(cfg.Export.OutDir, res.Artifacts)
		if err != nil {
			return res, err
		}
		res.Digest = m.Seal()
		if pdfPath != "" {
			if err := report.SavePDF(rep, pdfPath, report.PDFOptions{Digest: res.Digest}); err != nil {
				return res, err
			}
			res.Artifacts = append(res.Artifacts, pdfPath)
			if err := m.Add(pdfPath); err != nil {
				return res, err
			}
		}
		res.Manifest = base + ".manifest.json"
		if err := manifest.Save(m, res.Manifest); err != nil {
			return res, err
		}
		if cfg.Export.SignKey != "" {
			keyPEM, err := os.ReadFile(cfg.Export.SignKey)
			if err != nil {
				return res, fmt.Errorf("signing key: %w", err)
			}
			token, err := manifest.Sign(m, keyPEM, "klvctl "+version)
			if err != nil {
				return res, err
			}
			res.Signature = base + ".manifest.jwt"
			if err := os.WriteFile(res.Signature, []byte(token+"\n"), 0o644); err != nil {
				return res, err
			}
		}
	}

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			return res, fmt.Errorf("metrics textfile: %w", err)
		}
		logger.Debug().Str("path", cfg.Metrics.Textfile).Msg("metrics written")
	}
	snap := metrics.Snapshot()
	logger.Debug().
		Int64("frames", snap.Frames).
		Int64("failures", snap.Failures).
		Int64("resyncs", snap.Resyncs).
		Str("bytes", common.FormatBytes(snap.Bytes)).
		Dur("duration", snap.Duration).
		Float64("frames_per_second", snap.FramesPerSecond()).
		Msg("decode metrics")
	return res, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}
