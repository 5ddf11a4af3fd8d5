package ignore

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"
)

// FileName 是用户自定义忽略规则的文件名，放在被归档目录的根下
const FileName = ".avignore"

// DefaultRules 总是生效
var DefaultRules = []string{
	".av",  // 本地配置和缓存目录
	".git", // Git 仓库数据

	// 常见垃圾文件
	".DS_Store", // macOS
	"Thumbs.db", // Windows
}

// Matcher 判断一个路径在归档时是否应该被跳过
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 读取 root/.avignore (不存在时仅使用默认规则)
func NewMatcher(fsys afero.Fs, root string) (*Matcher, error) {
	lines := append([]string(nil), DefaultRules...)

	content, err := afero.ReadFile(fsys, filepath.Join(root, FileName))
	switch {
	case err == nil:
		lines = append(lines, strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")...)
	case errors.Is(err, fs.ErrNotExist):
		// 用户没定义 .avignore
	default:
		return nil, fmt.Errorf("read %s: %w", FileName, err)
	}

	return &Matcher{ignorer: gitignore.CompileIgnoreLines(lines...)}, nil
}

// Matches 检查给定的路径是否匹配忽略规则
// path: 相对于归档根目录、以 '/' 分隔的路径 (例如 "data/model.bin")
// isDir 为 true 时同时尝试 "dir/" 形式，使 "build/" 这类只匹配目录的规则生效
func (m *Matcher) Matches(path string, isDir bool) bool {
	if m == nil || m.ignorer == nil {
		return false
	}
	if m.ignorer.MatchesPath(path) {
		return true
	}
	return isDir && m.ignorer.MatchesPath(path+"/")
}
