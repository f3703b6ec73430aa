package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"example.com/klvgate/internal/common"
	"example.com/klvgate/internal/config"
	"example.com/klvgate/internal/dict"
	"example.com/klvgate/internal/edit"
	"example.com/klvgate/internal/klv"
	"example.com/klvgate/internal/manifest"
	"example.com/klvgate/internal/model"
	"example.com/klvgate/internal/scenario"
	"example.com/klvgate/internal/store"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

var errUsage = errors.New("invalid arguments")

func main() {
	if len(os.Args) < 2 {
		usage(os.Stdout)
		return
	}
	cmd := os.Args[1]
	var run func([]string) error
	switch cmd {
	case "analyze":
		run = analyzeCmd
	case "decode":
		run = decodeCmd
	case "generate":
		run = generateCmd
	case "modify":
		run = modifyCmd
	case "undo":
		run = undoCmd
	case "scenarios":
		run = scenariosCmd
	case "dict":
		run = dictCmd
	case "verify":
		run = verifyCmd
	default:
		usage(os.Stdout)
		return
	}
	if err := run(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, `klvctl %s (built %s) <command> [options]

Commands:
  analyze   --in <stream.klv> [--config <klvgate.yaml>] [--dict <dict.json>] [--strict] [--concurrency N] [--altitude-threshold M] [--formats json,csv,txt,pdf,stac] [--out-dir <dir>] [--summary-only] [--metrics <file.prom>] [--progress] [--sign-key <key.pem>]
  decode    --in <stream.klv> [--dict <dict.json>] [--frame N] [--out <frames.jsonl>]
  generate  (--scenario <name> [--frames N] [--start <RFC3339>] | --records <records.json>) --out <stream.klv>
  modify    --in <stream.klv> --overrides <overrides.json|yaml> --out <stream.klv> [--log <edits.jsonl>]
  undo      --in <stream.klv> --log <edits.jsonl> --out <restored.klv>
  scenarios
  dict      [--out <dict.json>]
  verify    --manifest <manifest.json> [--jwt <manifest.jwt> --pub <key.pem|cert.pem>]
`, version, buildDate)
}

// newLogger builds the process logger from defaults, the optional config
// file and the environment.
func newLogger(configPath string) (zerolog.Logger, io.Closer, config.Config, error) {
	cfg, err := config.Load(config.Options{Path: configPath, Required: configPath != defaultConfigPath, DotEnv: []string{".env"}})
	if err != nil {
		return zerolog.Nop(), nil, cfg, err
	}
	logger, closer, err := common.SetupLogging(cfg.Log, os.Stderr)
	if err != nil {
		return zerolog.Nop(), nil, cfg, err
	}
	return logger, closer, cfg, nil
}

const defaultConfigPath = "klvgate.yaml"

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func readStream(path string) ([]klv.Segment, klv.SplitStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, klv.SplitStats{}, err
	}
	segs, st := klv.Split(data)
	return segs, st, nil
}

func decodeCmd(args []string) error {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	in := fs.String("in", "", "input KLV stream")
	dictPath := fs.String("dict", "", "dictionary JSON file")
	frame := fs.Int("frame", -1, "decode only this frame")
	outPath := fs.String("out", "", "output JSON lines (default stdout)")
	configPath := fs.String("config", defaultConfigPath, "configuration file")
	fs.Parse(args)

	if *in == "" {
		return fmt.Errorf("required: --in: %w", errUsage)
	}
	logger, closer, cfg, err := newLogger(*configPath)
	if err != nil {
		return err
	}
	defer closer.Close()

	d, err := dict.Resolve(firstNonEmpty(*dictPath, cfg.Dictionary))
	if err != nil {
		return fmt.Errorf("dictionary: %w", err)
	}
	segs, st, err := readStream(*in)
	if err != nil {
		return err
	}
	if st.Resyncs > 0 || st.Truncated {
		logger.Warn().Int("resyncs", st.Resyncs).Int("skipped_bytes", st.SkippedBytes).Bool("truncated", st.Truncated).Msg("stream not contiguous")
	}
	inputs := store.InputsFromSegments(segs)
	if *frame >= 0 {
		if *frame >= len(inputs) {
			return fmt.Errorf("frame %d of %d: %w", *frame, len(inputs), edit.ErrFrameOutOfRange)
		}
		inputs = inputs[*frame : *frame+1]
	}

	ctx, cancel := signalContext()
	defer cancel()
	s, err := store.Builder{Codec: klv.NewCodec(d), Logger: logger}.Build(ctx, inputs)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	for _, f := range s.Frames() {
		if err := enc.Encode(struct {
			FrameNumber int          `json:"frame_number"`
			Metadata    model.Record `json:"metadata"`
		}{f.Index, f.Record}); err != nil {
			return err
		}
	}
	for _, fail := range s.Failures() {
		fmt.Fprintf(os.Stderr, "frame %d: %s: %s\n", fail.Index, fail.Kind, fail.Err)
	}
	return nil
}

func generateCmd(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	name := fs.String("scenario", "", "scenario name (see scenarios)")
	frames := fs.Int("frames", 0, "frame count (default per scenario)")
	start := fs.String("start", "", "first frame time, RFC 3339")
	records := fs.String("records", "", "JSON array of metadata records to encode instead of a scenario")
	out := fs.String("out", "", "output KLV stream")
	fs.Parse(args)

	if *out == "" || (*name == "") == (*records == "") {
		return fmt.Errorf("required: --out and one of --scenario, --records: %w", errUsage)
	}
	var recs []model.Record
	if *records != "" {
		b, err := os.ReadFile(*records)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(b, &recs); err != nil {
			return fmt.Errorf("parse records: %w", err)
		}
	} else {
		sc, err := scenario.Get(*name)
		if err != nil {
			return err
		}
		opts := scenario.Options{Frames: *frames}
		if *start != "" {
			t, err := time.Parse(time.RFC3339Nano, *start)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			opts.Start = t
		}
		if recs, err = sc.Generate(opts); err != nil {
			return err
		}
	}
	stream, err := scenario.Encode(recs)
	if err != nil {
		return err
	}
	if _, err := common.WriteFileIfChanged(*out, stream); err != nil {
		return err
	}
	fmt.Printf("Wrote %d frame(s), %s to %s\n", len(recs), common.FormatBytes(int64(len(stream))), *out)
	return nil
}

func modifyCmd(args []string) error {
	fs := flag.NewFlagSet("modify", flag.ExitOnError)
	in := fs.String("in", "", "input KLV stream")
	overrides := fs.String("overrides", "", "overrides document (.json, .yaml)")
	out := fs.String("out", "", "output KLV stream")
	logPath := fs.String("log", "", "edit log (default <out>.edits.jsonl)")
	dictPath := fs.String("dict", "", "dictionary JSON file")
	configPath := fs.String("config", defaultConfigPath, "configuration file")
	fs.Parse(args)

	if *in == "" || *overrides == "" || *out == "" {
		return fmt.Errorf("required: --in, --overrides, --out: %w", errUsage)
	}
	if *logPath == "" {
		*logPath = *out + ".edits.jsonl"
	}
	logger, closer, cfg, err := newLogger(*configPath)
	if err != nil {
		return err
	}
	defer closer.Close()

	d, err := dict.Resolve(firstNonEmpty(*dictPath, cfg.Dictionary))
	if err != nil {
		return fmt.Errorf("dictionary: %w", err)
	}
	plan, err := edit.LoadOverrides(d, *overrides)
	if err != nil {
		return err
	}
	stream, err := os.ReadFile(*in)
	if err != nil {
		return err
	}
	editLog := common.NewEditLog(*logPath)
	res, err := edit.Editor{Codec: klv.NewCodec(d), Log: editLog, Logger: logger}.Apply(stream, plan)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, res.Stream, 0o644); err != nil {
		return err
	}
	inHash := common.Sha256OfBytes(stream)
	outHash := common.Sha256OfBytes(res.Stream)
	fmt.Printf("Modified %d of %d frame(s), %d passed through\n", len(res.Modified), res.Frames, res.Passthrough)
	fmt.Printf("Input SHA256:  %s\n", inHash)
	fmt.Printf("Output SHA256: %s\n", outHash)
	fmt.Printf("Edit log: %s\n", editLog.Path())
	return nil
}

func undoCmd(args []string) error {
	fs := flag.NewFlagSet("undo", flag.ExitOnError)
	in := fs.String("in", "", "modified KLV stream")
	logPath := fs.String("log", "", "edit log (jsonl)")
	out := fs.String("out", "", "restored output file")
	fs.Parse(args)

	if *in == "" || *logPath == "" || *out == "" {
		return fmt.Errorf("required: --in, --log, --out: %w", errUsage)
	}
	entries, err := common.ReadEditLog(*logPath)
	if err != nil {
		return fmt.Errorf("read edit log: %w", err)
	}
	if len(entries) == 0 {
		return errors.New("edit log is empty")
	}
	stream, err := os.ReadFile(*in)
	if err != nil {
		return err
	}
	restored, err := edit.Undo(stream, entries)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, restored, 0o644); err != nil {
		return err
	}
	fmt.Printf("Reverted %d edit(s) to %s\n", len(entries), *out)
	fmt.Printf("Modified SHA256: %s\n", common.Sha256OfBytes(stream))
	fmt.Printf("Restored SHA256: %s\n", common.Sha256OfBytes(restored))
	return nil
}

func scenariosCmd(args []string) error {
	fs := flag.NewFlagSet("scenarios", flag.ExitOnError)
	fs.Parse(args)
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tFRAMES\tDESCRIPTION")
	for _, sc := range scenario.List() {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", sc.Name, sc.DefaultFrames, sc.Description)
	}
	return tw.Flush()
}

func dictCmd(args []string) error {
	fs := flag.NewFlagSet("dict", flag.ExitOnError)
	out := fs.String("out", "", "output file (default stdout)")
	in := fs.String("dict", "", "dictionary to normalise instead of the built-in table")
	fs.Parse(args)

	d, err := dict.Resolve(*in)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(dict.ToJSON(d), "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if *out == "" {
		_, err = os.Stdout.Write(b)
		return err
	}
	return os.WriteFile(*out, b, 0o644)
}

func verifyCmd(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	path := fs.String("manifest", "", "manifest JSON")
	tokenPath := fs.String("jwt", "", "manifest signature")
	pubPath := fs.String("pub", "", "signer public key or certificate (PEM)")
	fs.Parse(args)

	if *path == "" {
		return fmt.Errorf("required: --manifest: %w", errUsage)
	}
	m, err := manifest.Load(*path)
	if err != nil {
		return err
	}
	changed, err := manifest.Verify(m, filepath.Dir(*path))
	if err != nil {
		return err
	}
	if len(changed) > 0 {
		return fmt.Errorf("%d artifact(s) changed: %s", len(changed), strings.Join(changed, ", "))
	}
	if *tokenPath != "" {
		if *pubPath == "" {
			return fmt.Errorf("required with --jwt: --pub: %w", errUsage)
		}
		token, err := os.ReadFile(*tokenPath)
		if err != nil {
			return err
		}
		pub, err := os.ReadFile(*pubPath)
		if err != nil {
			return err
		}
		claims, err := manifest.VerifySignature(m, strings.TrimSpace(string(token)), pub)
		if err != nil {
			return fmt.Errorf("verify signature: %w", err)
		}
		fmt.Printf("Signature OK (issuer %q)\n", claims.Issuer)
	}
	fmt.Printf("Manifest OK: %d artifact(s), digest %s\n", len(m.Items), m.Digest)
	return nil
}
