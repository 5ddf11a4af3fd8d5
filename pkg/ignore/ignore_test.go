package ignore

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Defaults(t *testing.T) {
	// 1. 空目录 (没有 .avignore)
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/data", 0o755))

	matcher, err := NewMatcher(fs, "/data")
	require.NoError(t, err)

	// 2. 验证默认规则
	tests := []struct {
		path     string
		shouldIg bool
	}{
		{".av", true},
		{".av/cache/aa", true}, // 子路径也应该被忽略
		{".git", true},
		{"sub/.git", true},
		{".DS_Store", true},
		{"main.go", false},
		{"data/model.bin", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.shouldIg, matcher.Matches(tt.path, false), "Path: %s", tt.path)
		})
	}
}

func TestMatcher_WithUserFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	ignoreContent := "# 这是注释\r\n*.log\ntemp\n!important.log\n"
	require.NoError(t, afero.WriteFile(fs, filepath.Join("/data", FileName), []byte(ignoreContent), 0o644))

	matcher, err := NewMatcher(fs, "/data")
	require.NoError(t, err)

	tests := []struct {
		path     string
		isDir    bool
		shouldIg bool
	}{
		// 默认规则依然生效
		{".av", true, true},

		// 用户规则
		{"app.log", false, true},
		{"logs/error.log", false, true},
		{"temp", true, true},
		{"temp/file", false, true},

		{"main.go", false, false},

		// 负向规则
		{"important.log", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.shouldIg, matcher.Matches(tt.path, tt.isDir), "Path: %s", tt.path)
		})
	}
}

func TestMatcher_Nil(t *testing.T) {
	var m *Matcher
	assert.False(t, m.Matches("anything", false))
}
