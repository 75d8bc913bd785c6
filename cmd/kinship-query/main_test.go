package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/kinship/internal/config"
	"github.com/scrypster/kinship/internal/engine"
	"github.com/scrypster/kinship/internal/session"
	"github.com/scrypster/kinship/internal/storage/filesource"
	"github.com/scrypster/kinship/pkg/types"
)

func newService(t *testing.T) *engine.Service {
	t.Helper()
	color.NoColor = true

	dir := t.TempDir()
	_, err := filesource.WriteArchive(dir, []types.PersonRecord{
		{ID: "1", Name: "Arthur", Sex: "M", LineageID: "north"},
		{ID: "2", Name: "Charles", Sex: "M", LineageID: "north", FatherID: "1"},
		{ID: "3", Name: "Diana", Sex: "F", LineageID: "north", FatherID: "1"},
		{ID: "4", Name: "Iris", Sex: "F", LineageID: "north", MotherID: "3"},
		{ID: "9", Name: "Nobody", LineageID: "west"},
	})
	require.NoError(t, err)

	cfg := &config.Config{
		Source: config.SourceConfig{Kind: config.SourceFile, Dir: dir},
		Query:  config.QueryConfig{MaxDepth: 6},
	}
	return session.New(cfg, filesource.New(dir)).Service
}

func TestRun_PrintsRelationship(t *testing.T) {
	svc := newService(t)
	var out, errOut bytes.Buffer

	code := run(context.Background(), svc, options{from: "2", to: "4"}, &out, &errOut)
	require.Equal(t, exitOK, code, errOut.String())

	assert.Contains(t, out.String(), "Iris (4) is Charles (2)'s niece.")
	assert.Contains(t, out.String(), "Charles (2) -parent-> Arthur (1) -child-> Diana (3) -child-> Iris (4)")
	assert.Contains(t, out.String(), "3 degrees")
}

func TestRun_Trace(t *testing.T) {
	svc := newService(t)
	var out, errOut bytes.Buffer

	code := run(context.Background(), svc, options{from: "2", to: "1", trace: true}, &out, &errOut)
	require.Equal(t, exitOK, code)
	assert.Contains(t, out.String(), "trace: search 2 -> 1 (max 6)")
	assert.Contains(t, out.String(), "trace: loaded lineage north")
}

func TestRun_NoRelation(t *testing.T) {
	svc := newService(t)
	var out, errOut bytes.Buffer

	code := run(context.Background(), svc, options{from: "2", to: "9", maxDepth: 2}, &out, &errOut)
	assert.Equal(t, exitNoRelation, code)
	assert.Contains(t, out.String(), "No known relationship within 2 degrees.")
}

func TestRun_Neighbors(t *testing.T) {
	svc := newService(t)
	var out, errOut bytes.Buffer

	code := run(context.Background(), svc, options{from: "1", neighbors: true}, &out, &errOut)
	require.Equal(t, exitOK, code)
	assert.Contains(t, out.String(), "child  Charles (2)")
	assert.Contains(t, out.String(), "child  Diana (3)")
}

func TestRun_Errors(t *testing.T) {
	svc := newService(t)
	var out, errOut bytes.Buffer

	assert.Equal(t, exitUsage, run(context.Background(), svc, options{from: "1"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "usage:")

	assert.Equal(t, exitUsage, run(context.Background(), svc, options{from: "1", to: "2", maxDepth: -1}, &out, &errOut))

	errOut.Reset()
	assert.Equal(t, exitUsage, run(context.Background(), svc, options{from: "1", to: "404"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "404")
}
