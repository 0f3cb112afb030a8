package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const importerCSV = `latitude,longitude,altitude(feet),speed(mph),timestamp,isTakingVideo
-33.80000,151.20000,100,10,1709303525000,0
-33.79990,151.20000,110,11,1709303526000,1
-33.79980,151.20000,120,12,1709303527000,1
`

func writeImportFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestImportFilesDuplicateWithinBatch(t *testing.T) {
	store := newTestStore(t)
	dir := t.TempDir()

	// Two copies of the same log under different names. Both pass the
	// worker-side hash check before either has landed; the write path
	// must still store only one.
	a := writeImportFile(t, dir, "a.csv", []byte(importerCSV))
	b := writeImportFile(t, dir, "b.csv", []byte(importerCSV))

	importer := NewImporter(store, DefaultConfig(), WithLogger(discardLogger()), WithWorkers(2))
	require.NoError(t, importer.ImportFiles(context.Background(), []string{a, b}))

	flights, err := store.Flights(context.Background())
	require.NoError(t, err)
	assert.Len(t, flights, 1)
}

func TestImportFilesSkipsAlreadyImported(t *testing.T) {
	store := newTestStore(t)
	dir := t.TempDir()
	path := writeImportFile(t, dir, "a.csv", []byte(importerCSV))

	importer := NewImporter(store, DefaultConfig(), WithLogger(discardLogger()))
	require.NoError(t, importer.ImportFiles(context.Background(), []string{path}))
	require.NoError(t, importer.ImportFiles(context.Background(), []string{path}))

	flights, err := store.Flights(context.Background())
	require.NoError(t, err)
	assert.Len(t, flights, 1)
}
