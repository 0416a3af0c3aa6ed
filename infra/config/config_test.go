package config

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	var s Server
	_, err := Load(".", "free-model", &s)
	require.NoError(t, err)
	assert.Equal(t, DefaultServer(), s)

	dir := t.TempDir()
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0644))
	_, err = Load(dir, "broken", &s)
	assert.Error(t, err)

	_, err = Load(dir, "missing", &s)
	assert.Error(t, err)

	assert.Panics(t, func() {
		MustLoad("missing", &s)
	})
}
