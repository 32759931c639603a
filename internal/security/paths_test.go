package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmp := t.TempDir()
	safe := filepath.Join(tmp, "plots")
	outside := filepath.Join(tmp, "elsewhere")
	require.NoError(t, os.MkdirAll(safe, 0o755))
	require.NoError(t, os.MkdirAll(outside, 0o755))
	require.NoError(t, os.Symlink(outside, filepath.Join(safe, "link")))

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"file in dir", filepath.Join(safe, "track.png"), false},
		{"new subdir", filepath.Join(safe, "run1", "track.png"), false},
		{"the dir itself", safe, false},
		{"dot dot", filepath.Join(safe, "..", "elsewhere", "x.png"), true},
		{"sibling", filepath.Join(outside, "x.png"), true},
		{"through symlink", filepath.Join(safe, "link", "x.png"), true},
		{"new file through symlink", filepath.Join(safe, "link", "new", "x.png"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.path, safe)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateOutputPath(t *testing.T) {
	assert.NoError(t, ValidateOutputPath(filepath.Join(t.TempDir(), "plots")))
	assert.NoError(t, ValidateOutputPath("plots"))
	assert.Error(t, ValidateOutputPath("/proc/self/plots"))
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"cjd2jcdz2003c6ymsvntfb0k6-0": "cjd2jcdz2003c6ymsvntfb0k6-0",
		"route 1/../etc":              "route_1_.._etc",
		"  spaces  ":                  "spaces",
		"":                            "unknown",
		"///":                         "unknown",
		"Märkt Straße":                "M_rkt_Stra_e",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFilename(in), in)
	}
}
