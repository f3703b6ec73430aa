package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"example.com/klvgate/internal/config"
	"example.com/klvgate/internal/klv"
	"example.com/klvgate/internal/manifest"
	"example.com/klvgate/internal/report"
	"example.com/klvgate/internal/scenario"
)

// writeSampleStream writes the sample_video scenario with the checksum of
// frame corrupt broken.
func writeSampleStream(t *testing.T, path string, corrupt int) {
	t.Helper()
	sc, err := scenario.Get("sample_video")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	recs, err := sc.Generate(scenario.Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	stream, err := scenario.Encode(recs)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if corrupt >= 0 {
		segs, _ := klv.Split(stream)
		seg := segs[corrupt]
		// last byte before the checksum element
		stream[seg.Offset+len(seg.Data)-5] ^= 0xFF
	}
	if err := os.WriteFile(path, stream, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestAnalyzeWritesArtifacts(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "flight.klv")
	writeSampleStream(t, in, 3)

	cfg := config.Default()
	cfg.Export.OutDir = filepath.Join(root, "out")
	cfg.Export.Formats = []string{"json", "csv", "txt", "pdf", "stac"}
	cfg.Metrics.Textfile = filepath.Join(root, "klvgate.prom")

	res, err := runAnalysis(cfg, in, analyzeOptions{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("runAnalysis: %v", err)
	}
	rep := res.Report
	if rep.FrameCount != 9 || len(rep.Failures) != 1 || rep.Failures[0].Index != 3 {
		t.Fatalf("frames %d failures %+v", rep.FrameCount, rep.Failures)
	}
	if rep.Clean() {
		t.Fatalf("report with a failed frame reported clean")
	}

	outDir := cfg.Export.OutDir
	for _, name := range []string{
		"flight.report.json",
		"flight.csv",
		"flight.summary.txt",
		"flight.report.pdf",
		"flight.stac.json",
		"flight.manifest.json",
	} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}
	if len(res.Artifacts) != 5 {
		t.Fatalf("artifacts %v", res.Artifacts)
	}

	saved, err := report.LoadJSON(filepath.Join(outDir, "flight.report.json"))
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if saved.ID != rep.ID || saved.FrameCount != 9 || len(saved.Frames) != 9 {
		t.Fatalf("saved report %+v", saved)
	}

	m, err := manifest.Load(res.Manifest)
	if err != nil {
		t.Fatalf("manifest.Load: %v", err)
	}
	if m.Digest != res.Digest || len(m.Items) != 5 || m.DigestItems != 4 {
		t.Fatalf("manifest %+v", m)
	}
	changed, err := manifest.Verify(m, outDir)
	if err != nil || len(changed) != 0 {
		t.Fatalf("Verify: %v %v", changed, err)
	}

	prom, err := os.ReadFile(cfg.Metrics.Textfile)
	if err != nil {
		t.Fatalf("metrics textfile: %v", err)
	}
	if !bytes.Contains(prom, []byte("klvgate_")) {
		t.Fatalf("metrics textfile missing klvgate series:\n%s", prom)
	}
}

func TestAnalyzeStrictStopsAtFailure(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "flight.klv")
	writeSampleStream(t, in, 3)

	cfg := config.Default()
	cfg.Analysis.Strict = true
	cfg.Export.OutDir = filepath.Join(root, "out")
	if _, err := runAnalysis(cfg, in, analyzeOptions{Logger: zerolog.Nop()}); err == nil {
		t.Fatalf("expected strict analysis to fail")
	}
	if _, err := os.Stat(filepath.Join(root, "out", "flight.report.json")); !os.IsNotExist(err) {
		t.Fatalf("strict failure still wrote a report: %v", err)
	}
}

func TestModifyThenUndoRoundTrip(t *testing.T) {
	root := t.TempDir()
	original := filepath.Join(root, "stationary.klv")
	if err := generateCmd([]string{"--scenario", "stationary", "--frames", "5", "--out", original}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	overrides := filepath.Join(root, "overrides.json")
	doc, _ := json.Marshal(map[string]any{"2": map[string]any{"altitude": 4321.5}})
	if err := os.WriteFile(overrides, doc, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	modified := filepath.Join(root, "modified.klv")
	if err := modifyCmd([]string{"--in", original, "--overrides", overrides, "--out", modified}); err != nil {
		t.Fatalf("modify: %v", err)
	}
	restored := filepath.Join(root, "restored.klv")
	if err := undoCmd([]string{"--in", modified, "--log", modified + ".edits.jsonl", "--out", restored}); err != nil {
		t.Fatalf("undo: %v", err)
	}

	want, _ := os.ReadFile(original)
	mod, _ := os.ReadFile(modified)
	got, _ := os.ReadFile(restored)
	if bytes.Equal(want, mod) {
		t.Fatalf("modify left the stream unchanged")
	}
	if !bytes.Equal(want, got) {
		t.Fatalf("undo did not restore the original stream")
	}
}

func TestCommandsRejectMissingArguments(t *testing.T) {
	cases := []struct {
		name string
		run  func([]string) error
	}{
		{"analyze", analyzeCmd},
		{"decode", decodeCmd},
		{"generate", generateCmd},
		{"modify", modifyCmd},
		{"undo", undoCmd},
		{"verify", verifyCmd},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.run(nil); err == nil {
				t.Fatalf("expected usage error")
			}
		})
	}
}
