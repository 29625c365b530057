package attach

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/denormal/go-gitignore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/weaviate/tiktoken-go"
)

// Attachment is one file picked up for inclusion in a prompt.
type Attachment struct {
	Path    string
	Content string
	Tokens  int
}

// Options bounds what a Collector picks up. Zero values get defaults.
type Options struct {
	MaxFileSize int64 // per file, bytes; default 256 KiB
	MaxFiles    int   // default 64
	MaxTokens   int   // total budget across files; 0 is unlimited
	IncludeExts []string
	NoGitIgnore bool
}

var defaultSkippedDirs = []string{
	".git", ".svn", "node_modules", "vendor", "dist", "build", ".idea", ".vscode",
}

// Collector walks paths and gathers text files for prompt context,
// honoring .gitignore and skipping binaries.
type Collector struct {
	opts    Options
	counter *tiktoken.Tiktoken
	ignore  gitignore.GitIgnore
	logger  zerolog.Logger
}

func NewCollector(root string, opts Options) (*Collector, error) {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = 256 * 1024
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = 64
	}
	counter, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, errors.Wrap(err, "initialize token counter")
	}

	c := &Collector{
		opts:    opts,
		counter: counter,
		logger:  log.With().Str("component", "attach").Logger(),
	}
	if !opts.NoGitIgnore {
		c.ignore = loadGitIgnore(root, c.logger)
	}
	return c, nil
}

func loadGitIgnore(root string, logger zerolog.Logger) gitignore.GitIgnore {
	ignoreFile := filepath.Join(root, ".gitignore")
	if _, err := os.Stat(ignoreFile); err == nil {
		filter, err := gitignore.NewFromFile(ignoreFile)
		if err == nil {
			return filter
		}
		logger.Warn().Err(err).Msg("could not read .gitignore, attaching without it")
		return nil
	}
	filter, err := gitignore.NewRepository(root)
	if err != nil {
		logger.Debug().Err(err).Msg("no gitignore rules found")
		return nil
	}
	return filter
}

// Collect gathers attachments under the given paths. Files are added
// in walk order until a limit is hit; hitting a limit truncates the
// result rather than failing.
func (c *Collector) Collect(paths ...string) ([]Attachment, error) {
	var out []Attachment
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, errors.Wrapf(err, "stat %s", p)
		}
		if !info.IsDir() {
			out = c.addFile(out, p, info.Size())
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if isSkippedDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if c.excluded(path) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			before := len(out)
			out = c.addFile(out, path, info.Size())
			if len(out) == before && c.full(out) {
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "walk %s", p)
		}
	}
	return out, nil
}

func (c *Collector) excluded(path string) bool {
	if c.ignore != nil && path != "." {
		if match := c.ignore.Match(path); match != nil && match.Ignore() {
			return true
		}
	}
	if len(c.opts.IncludeExts) == 0 {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range c.opts.IncludeExts {
		if ext == strings.ToLower(allowed) {
			return false
		}
	}
	return true
}

func (c *Collector) full(current []Attachment) bool {
	if len(current) >= c.opts.MaxFiles {
		return true
	}
	return c.opts.MaxTokens > 0 && TotalTokens(current) >= c.opts.MaxTokens
}

func (c *Collector) addFile(current []Attachment, path string, size int64) []Attachment {
	if c.full(current) {
		c.logger.Debug().Str("path", path).Msg("attachment limits reached, skipping")
		return current
	}
	if size > c.opts.MaxFileSize {
		c.logger.Debug().Str("path", path).Int64("size", size).Msg("file too large, skipping")
		return current
	}
	content, err := os.ReadFile(path)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("could not read file, skipping")
		return current
	}
	if isBinary(content) {
		c.logger.Debug().Str("path", path).Msg("binary file, skipping")
		return current
	}
	text := string(content)
	return append(current, Attachment{
		Path:    path,
		Content: text,
		Tokens:  len(c.counter.Encode(text, nil, nil)),
	})
}

// TotalTokens sums the token counts of the given attachments.
func TotalTokens(items []Attachment) int {
	total := 0
	for _, item := range items {
		total += item.Tokens
	}
	return total
}

func isSkippedDir(name string) bool {
	for _, skipped := range defaultSkippedDirs {
		if name == skipped {
			return true
		}
	}
	return false
}

// isBinary checks the first 512 bytes for null bytes.
func isBinary(content []byte) bool {
	probe := content
	if len(probe) > 512 {
		probe = probe[:512]
	}
	return bytes.IndexByte(probe, 0) != -1
}
