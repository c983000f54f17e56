package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"clip-merger/internal/database"
	"clip-merger/internal/merge"
	"clip-merger/internal/startup"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPresetsCmd(t *testing.T) {
	out, err := execute(t, "presets")
	if err != nil {
		t.Fatalf("presets: %v", err)
	}
	for _, want := range []string{"original", "720p", "1280x720", "grayscale", "circleopen", "music"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "clipmerge "+startup.Version) {
		t.Errorf("output = %q", out)
	}
}

func TestMergeCmdRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	clip := touch(t, dir, "a.mp4")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no clips", nil, "--clip"},
		{"missing clip", []string{"--clip", filepath.Join(dir, "missing.mp4")}, "missing.mp4"},
		{"missing music", []string{"--clip", clip, "--music", filepath.Join(dir, "song.mp3")}, "song.mp3"},
		{"music mode without music", []string{"--clip", clip, "--audio-mode", "music", "-o", filepath.Join(dir, "out.mp4"), "--work-dir", dir}, "background music"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append([]string{"merge", "--ffmpeg", "ffmpeg-not-installed"}, tt.args...)...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestMergeOptionsJob(t *testing.T) {
	dir := t.TempDir()
	opts := &mergeOptions{
		clips:              []string{touch(t, dir, "a.mp4"), touch(t, dir, "b.mp4")},
		intro:              touch(t, dir, "intro.mp4"),
		music:              touch(t, dir, "song.mp3"),
		preset:             "1080p",
		filters:            []string{"sepia"},
		transition:         "wipeleft",
		transitionDuration: 9,
		audioMode:          "mix",
		originalVolume:     0.5,
		musicVolume:        0.2,
		ducking:            true,
		output:             filepath.Join(dir, "out", "final.mp4"),
	}

	var warn bytes.Buffer
	job, err := opts.job(&warn)
	if err != nil {
		t.Fatalf("job: %v", err)
	}
	if len(job.Clips) != 2 || job.Clips[1].Role != merge.RoleClip {
		t.Errorf("clips = %+v", job.Clips)
	}
	if job.Intro == nil || job.Intro.Role != merge.RoleIntro || job.Outro != nil {
		t.Errorf("intro/outro = %+v/%+v", job.Intro, job.Outro)
	}
	if job.Audio.Music == nil || job.Audio.Mode != merge.AudioMix || !job.Audio.Ducking || job.Audio.MusicVolume != 0.2 {
		t.Errorf("audio = %+v", job.Audio)
	}
	if job.Transition.Kind != merge.TransitionWipeLeft || job.Transition.Duration != merge.MaxTransitionDuration {
		t.Errorf("transition = %+v", job.Transition)
	}
	if job.OutputName != "final.mp4" || job.Preset != "1080p" {
		t.Errorf("output/preset = %q/%q", job.OutputName, job.Preset)
	}
}

func TestMergeOptionsJobFallbacks(t *testing.T) {
	dir := t.TempDir()
	opts := &mergeOptions{
		clips:              []string{touch(t, dir, "a.mp4")},
		filters:            []string{"glow", "grayscale"},
		transition:         "spin",
		transitionDuration: merge.DefaultTransitionDuration,
		audioMode:          "karaoke",
		originalVolume:     merge.DefaultOriginalVolume,
		musicVolume:        merge.DefaultMusicVolume,
		output:             filepath.Join(dir, "out.mp4"),
	}

	var warn bytes.Buffer
	job, err := opts.job(&warn)
	if err != nil {
		t.Fatalf("job: %v", err)
	}
	if job.Transition.Kind != merge.TransitionNone {
		t.Errorf("transition = %q, want none", job.Transition.Kind)
	}
	if job.Audio.Mode != merge.AudioOriginal {
		t.Errorf("audio mode = %q, want original", job.Audio.Mode)
	}
	if len(job.Normalization.Filters) != 1 || job.Normalization.Filters[0] != "grayscale" {
		t.Errorf("filters = %v, want [grayscale]", job.Normalization.Filters)
	}
	for _, want := range []string{`unknown transition "spin"`, `unknown audio mode "karaoke"`, `unknown filter "glow"`} {
		if !strings.Contains(warn.String(), want) {
			t.Errorf("warnings missing %q:\n%s", want, warn.String())
		}
	}
}

func TestPrintSummary(t *testing.T) {
	fade := merge.NewTransitionSpec(merge.TransitionFade, 0.5)

	tests := []struct {
		name    string
		job     *merge.MergeJob
		res     *merge.Result
		want    string
		notWant string
	}{
		{
			name:    "single clip with transition",
			job:     &merge.MergeJob{Transition: fade},
			res:     &merge.Result{Clips: 1, Duration: 3, Resolution: merge.Resolution{Width: 1280, Height: 720}},
			want:    "single input: transition not applied",
			notWant: "failed",
		},
		{
			name:    "cross-faded clips",
			job:     &merge.MergeJob{Transition: fade},
			res:     &merge.Result{Clips: 2, Duration: 5.5, CrossFade: true, Resolution: merge.Resolution{Width: 1280, Height: 720}},
			want:    "out.mp4: 2 clip(s), 5.50s, 1280x720",
			notWant: "not applied",
		},
		{
			name:    "no transition",
			job:     &merge.MergeJob{},
			res:     &merge.Result{Clips: 1, Duration: 3, Resolution: merge.Resolution{Width: 1280, Height: 720}},
			want:    "out.mp4: 1 clip(s), 3.00s, 1280x720",
			notWant: "transition",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printSummary(&buf, "out.mp4", tt.job, tt.res)
			out := buf.String()
			if !strings.Contains(out, tt.want) {
				t.Errorf("output = %q, want it to contain %q", out, tt.want)
			}
			if strings.Contains(out, tt.notWant) {
				t.Errorf("output = %q, should not contain %q", out, tt.notWant)
			}
		})
	}
}

func TestProbeCmdToolMissing(t *testing.T) {
	dir := t.TempDir()
	clip := touch(t, dir, "a.mp4")

	out, err := execute(t, "probe", "--ffprobe", "ffprobe-not-installed", clip)
	if err == nil || !strings.Contains(err.Error(), "1 of 1") {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(out, "error:") {
		t.Errorf("output = %q", out)
	}

	if _, err := execute(t, "probe"); err == nil {
		t.Error("probe without files should fail")
	}
}

func seedJobStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.db")
	ctx := context.Background()

	db, err := database.New(ctx, path)
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	defer db.Close()

	ok := &merge.MergeJob{
		ID:         "job-ok",
		Clips:      []merge.MediaAsset{merge.NewAsset("a.mp4", merge.RoleClip), merge.NewAsset("b.mp4", merge.RoleClip)},
		Preset:     "720p",
		Transition: merge.NewTransitionSpec(merge.TransitionFade, 1),
		Audio:      merge.DefaultAudioPolicy(),
		OutputName: "ok.mp4",
	}
	if err := db.JobStarted(ctx, ok); err != nil {
		t.Fatal(err)
	}
	if err := db.JobFinished(ctx, ok, &merge.Result{JobID: ok.ID, Clips: 2, Duration: 9.4, CrossFade: true}, nil); err != nil {
		t.Fatal(err)
	}

	bad := &merge.MergeJob{
		ID:         "job-bad",
		Clips:      []merge.MediaAsset{merge.NewAsset("c.mp4", merge.RoleClip)},
		Audio:      merge.DefaultAudioPolicy(),
		OutputName: "bad.mp4",
	}
	if err := db.JobStarted(ctx, bad); err != nil {
		t.Fatal(err)
	}
	if err := db.JobFinished(ctx, bad, nil, merge.ErrConcatenationFailure); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestJobsCmd(t *testing.T) {
	dbPath := seedJobStore(t)

	t.Run("list json", func(t *testing.T) {
		out, err := execute(t, "jobs", "--db", dbPath, "--format", "json", "list")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		var list database.JobList
		if err := json.Unmarshal([]byte(out), &list); err != nil {
			t.Fatalf("output is not JSON: %v\n%s", err, out)
		}
		if list.TotalItems != 2 {
			t.Errorf("total = %d, want 2", list.TotalItems)
		}
	})

	t.Run("list filtered table", func(t *testing.T) {
		out, err := execute(t, "jobs", "--db", dbPath, "--format", "table", "list", "--status", "failed")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if !strings.Contains(out, "job-bad") || strings.Contains(out, "job-ok") {
			t.Errorf("output = %s", out)
		}
	})

	t.Run("list bad status", func(t *testing.T) {
		if _, err := execute(t, "jobs", "--db", dbPath, "list", "--status", "queued"); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("show", func(t *testing.T) {
		out, err := execute(t, "jobs", "--db", dbPath, "--format", "table", "show", "job-ok")
		if err != nil {
			t.Fatalf("show: %v", err)
		}
		for _, want := range []string{"job-ok", "succeeded", "ok.mp4", "fade"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("show missing", func(t *testing.T) {
		_, err := execute(t, "jobs", "--db", dbPath, "show", "nope")
		if err == nil || !strings.Contains(err.Error(), "not found") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("prune", func(t *testing.T) {
		out, err := execute(t, "jobs", "--db", dbPath, "prune", "--yes", "--older-than", "1h")
		if err != nil {
			t.Fatalf("prune: %v", err)
		}
		if !strings.Contains(out, "Pruned 0 job(s)") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("bad format", func(t *testing.T) {
		if _, err := execute(t, "jobs", "--db", dbPath, "--format", "xml", "list"); err == nil {
			t.Error("expected error")
		}
	})
}

func TestJobsCmdMissingStore(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope", "jobs.db")
	_, err := execute(t, "jobs", "--db", missing, "list")
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want not-exist", err)
	}
	if _, statErr := os.Stat(missing); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("a missing store must not be created")
	}
}

func TestConfirm(t *testing.T) {
	tests := map[string]bool{
		"y\n":   true,
		"YES\n": true,
		"n\n":   false,
		"\n":    false,
		"":      false,
	}
	for in, want := range tests {
		var out bytes.Buffer
		if got := confirm(strings.NewReader(in), &out, "go? "); got != want {
			t.Errorf("confirm(%q) = %v, want %v", in, got, want)
		}
		if out.String() != "go? " {
			t.Errorf("prompt = %q", out.String())
		}
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.mp4")
	if err := os.WriteFile(src, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "dst.mp4")
	if err := os.WriteFile(dst, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := copyFile(src, dst); err != nil {
		t.Fatalf("copyFile: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "video" {
		t.Errorf("dst = %q, %v", data, err)
	}
	if err := copyFile(filepath.Join(dir, "missing"), dst); err == nil {
		t.Error("expected error for missing source")
	}
}

// TestMergeCmdWithFFmpeg runs the real pipeline on two generated clips.
func TestMergeCmdWithFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}
	if testing.Short() {
		t.Skip("skipping encode in short mode")
	}

	dir := t.TempDir()
	var clips []string
	for i, size := range []string{"320x240", "640x360"} {
		p := filepath.Join(dir, "clip"+string(rune('a'+i))+".mp4")
		gen := exec.Command("ffmpeg", "-y", "-v", "error",
			"-f", "lavfi", "-i", "testsrc=duration=1.5:size="+size+":rate=25",
			"-f", "lavfi", "-i", "sine=frequency=440:duration=1.5",
			"-shortest", "-c:v", "libx264", "-pix_fmt", "yuv420p", "-c:a", "aac", p)
		if out, err := gen.CombinedOutput(); err != nil {
			t.Skipf("cannot generate test clip: %v\n%s", err, out)
		}
		clips = append(clips, p)
	}

	output := filepath.Join(dir, "merged.mp4")
	out, err := execute(t, "merge",
		"--clip", clips[0], "--clip", clips[1],
		"--preset", "480p", "--transition", "fade", "--transition-duration", "0.5",
		"--work-dir", filepath.Join(dir, "work"), "-o", output)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !strings.Contains(out, "2 clip(s)") || !strings.Contains(out, "854x480") {
		t.Errorf("output = %q", out)
	}
	if info, err := os.Stat(output); err != nil || info.Size() == 0 {
		t.Fatalf("merged file missing: %v", err)
	}

	probeOut, err := execute(t, "probe", output)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !strings.Contains(probeOut, "854x480") {
		t.Errorf("probe output = %q", probeOut)
	}
}
