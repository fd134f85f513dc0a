package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/canvas-progress/internal/testutil"
	"github.com/Sternrassler/canvas-progress/pkg/canvas"
	"github.com/Sternrassler/canvas-progress/pkg/config"
	"github.com/Sternrassler/canvas-progress/pkg/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"--course", "42", "--order", "desc", "--concurrency", "3"})
	require.NoError(t, err)
	assert.Equal(t, "42", opts.courseID)
	assert.Equal(t, "desc", opts.order)
	assert.Equal(t, 3, opts.concurrency)
	assert.Equal(t, "-", opts.output)

	_, err = parseFlags(nil)
	assert.Error(t, err, "course is required")

	_, err = parseFlags([]string{"-c", "1", "-o", "sideways"})
	assert.Error(t, err)
}

func TestOptionsApply(t *testing.T) {
	cfg := &config.Config{}
	cfg.Canvas.PlatformURL = "https://env.example"
	cfg.Report.Concurrency = 8

	options{token: "flag-token", concurrency: 2}.apply(cfg)

	assert.Equal(t, "https://env.example", cfg.Canvas.PlatformURL)
	assert.Equal(t, "flag-token", cfg.Canvas.Token)
	assert.Equal(t, 2, cfg.Report.Concurrency)
}

func csvConfig(mock *testutil.MockCanvas) *config.Config {
	return &config.Config{
		Env:  config.EnvDevelopment,
		Port: 3000,
		Canvas: config.CanvasConfig{
			PlatformURL: mock.URL(),
			Token:       testutil.Token,
			PerPage:     100,
			Timeout:     5 * time.Second,
			MaxAttempts: 1,
		},
		Report: config.ReportConfig{Concurrency: 2, ExcludedModule: "Programa del Curso"},
		Cache:  config.CacheConfig{Backend: config.CacheMemory},
		Log:    config.LogConfig{Level: "error"},
	}
}

func TestRun(t *testing.T) {
	mock := testutil.NewMockCanvas()
	defer mock.Close()
	mock.SetStudents("5",
		testutil.Student(1, "Ana", "IEST-2"),
		testutil.Student(2, "Luis", "IEST-10"),
	)
	unit := func(done bool) canvas.Module {
		return canvas.Module{ID: 3, Name: "Unidad 1", Items: []canvas.ModuleItem{
			testutil.Item(30, "Tarea", "must_submit", done),
		}}
	}
	mock.SetModules("5", 1, unit(true))
	mock.SetModules("5", 2, unit(false))

	t.Run("stdout desc", func(t *testing.T) {
		var out bytes.Buffer
		err := run(context.Background(), csvConfig(mock), options{courseID: "5", order: "desc", output: "-"}, &out)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, "\ufeffID IEST,Nombre,Módulo 0", lines[0])
		assert.Equal(t, "IEST-10,Luis,0%", lines[1])
		assert.Equal(t, "IEST-2,Ana,100%", lines[2])
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "progreso.csv")
		var out bytes.Buffer
		err := run(context.Background(), csvConfig(mock), options{courseID: "5", order: "asc", output: path}, &out)
		require.NoError(t, err)
		assert.Zero(t, out.Len())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "IEST-2,Ana,100%")
	})
}

func TestWriteOutput(t *testing.T) {
	var stdout bytes.Buffer
	require.NoError(t, writeOutput("-", &stdout, []byte("a,b\n")))
	assert.Equal(t, "a,b\n", stdout.String())

	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, writeOutput(path, &stdout, []byte("c,d\n")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "c,d\n", string(data))

	err = writeOutput(filepath.Join(t.TempDir(), "missing", "out.csv"), &stdout, []byte("x"))
	assert.ErrorContains(t, err, "create output")
}

func TestRun_NotConfigured(t *testing.T) {
	mock := testutil.NewMockCanvas()
	defer mock.Close()
	cfg := csvConfig(mock)
	cfg.Canvas.PlatformURL = ""
	err := run(context.Background(), cfg, options{courseID: "5", order: "asc"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, report.ErrNotConfigured)
}
