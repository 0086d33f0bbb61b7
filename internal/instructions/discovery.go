// Package instructions 收集随每个回合发送给模型的项目说明。
package instructions

import (
	"os"
	"path/filepath"
	"strings"

	"chatline/internal/logger"
)

var log = logger.Named("instructions")

const (
	// ProjectDocFilename 是项目说明文件名。
	ProjectDocFilename = "CHATLINE.md"
	// ProjectOverrideFilename 存在时替代同一目录下的其它说明文件。
	ProjectOverrideFilename = "CHATLINE.override.md"
	// AgentsDocFilename 作为同目录没有 CHATLINE.md 时的兼容名称。
	AgentsDocFilename = "AGENTS.md"
)

// Discover 按从外到内的顺序拼接说明：dataDir 下的全局 CHATLINE.md，
// 然后是 workdir 到根目录链上每一层的说明文件，越靠近 workdir 的越靠后。
func Discover(dataDir, workdir string) string {
	var parts []string
	if dataDir != "" {
		if text, ok := read(filepath.Join(dataDir, ProjectDocFilename)); ok {
			parts = append(parts, text)
		}
	}

	dir := workdir
	if dir == "" {
		dir, _ = os.Getwd()
	}
	if dir == "" {
		return strings.Join(parts, "\n\n")
	}
	dir = filepath.Clean(dir)

	var chain []string
	prev := ""
	for dir != prev {
		chain = append(chain, dir)
		prev = dir
		dir = filepath.Dir(dir)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for _, name := range []string{ProjectOverrideFilename, ProjectDocFilename, AgentsDocFilename} {
			if text, ok := read(filepath.Join(chain[i], name)); ok {
				parts = append(parts, text)
				break
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

func read(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithField("path", path).Warnf("read instructions: %v", err)
		}
		return "", false
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", false
	}
	log.WithField("path", path).Debug("loaded instructions")
	return text, true
}
