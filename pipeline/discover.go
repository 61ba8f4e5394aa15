package pipeline

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// chapterNumberRe matches the two supported basename shapes:
// "<novel>_[<n>]_<title>.txt" and "<novel>_<n>_<title>.txt"
var chapterNumberRe = regexp.MustCompile(`_\[?(\d+)\]?_`)

// ParseChapterNumber extracts the chapter number from a chapter
// filename, per the Chapter Job data model.
func ParseChapterNumber(filename string) (int, bool) {
	m := chapterNumberRe.FindStringSubmatch(filepath.Base(filename))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// tocTitle is the literal title that marks a file as a directory/TOC
// file by name alone, independent of the content heuristic in
// IsDirectoryFile.
const tocTitle = "目录"

// IsTOCFilename reports whether filename's parsed title component is
// the literal "目录" marker.
func IsTOCFilename(filename string) bool {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	parts := strings.Split(base, "_")
	for _, p := range parts {
		if p == tocTitle {
			return true
		}
	}
	return false
}

// bracketDigits pulls a bracketed chapter number like "[12]" out of a filename.
var bracketDigits = regexp.MustCompile(`\[(\d+)\]`)

// bareDigits pulls the first run of digits out of a filename.
var bareDigits = regexp.MustCompile(`(\d+)`)

// FindMatchingFiles resolves the -p/--pattern and -r/--range flags into
// a concrete, sorted, de-duplicated file list. When pattern contains
// "[num]" and numRange is set, every number in the range is substituted
// in turn (standard substitution, then a "[<n>]" bracketed variant) and
// globbed; if nothing matches, it falls back to a non-recursive
// directory scan for files carrying a matching bracketed or bare digit.
func FindMatchingFiles(pattern string, numRange *[2]int) ([]string, error) {
	seen := map[string]bool{}
	var out []string

	add := func(paths []string) {
		for _, p := range paths {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}

	switch {
	case numRange != nil && strings.Contains(pattern, "[num]"):
		start, end := numRange[0], numRange[1]
		for n := start; n <= end; n++ {
			candidates := []string{
				strings.ReplaceAll(pattern, "[num]", strconv.Itoa(n)),
				strings.ReplaceAll(pattern, "[num]", "["+strconv.Itoa(n)+"]"),
			}
			for _, candidate := range candidates {
				matched, err := filepath.Glob(filepath.ToSlash(candidate))
				if err != nil {
					return nil, err
				}
				add(matched)
			}
		}
		if len(out) == 0 {
			wider, err := widerSearch(pattern, start, end)
			if err != nil {
				return nil, err
			}
			add(wider)
		}
	case strings.ContainsAny(pattern, "*?"):
		matched, err := filepath.Glob(filepath.ToSlash(pattern))
		if err != nil {
			return nil, err
		}
		add(matched)
	default:
		if info, err := os.Stat(pattern); err == nil && !info.IsDir() {
			add([]string{pattern})
		}
	}

	sort.Strings(out)
	return out, nil
}

// widerSearch scans pattern's directory (non-recursively) for .txt
// files whose name carries a bracketed or bare digit within [start,end].
func widerSearch(pattern string, start, end int) ([]string, error) {
	dir := filepath.Dir(pattern)
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		full := filepath.Join(dir, e.Name())

		matched := false
		for _, m := range bracketDigits.FindAllStringSubmatch(e.Name(), -1) {
			if n, err := strconv.Atoi(m[1]); err == nil && n >= start && n <= end {
				matched = true
				break
			}
		}
		if !matched {
			if m := bareDigits.FindStringSubmatch(e.Name()); m != nil {
				if n, err := strconv.Atoi(m[1]); err == nil && n >= start && n <= end {
					matched = true
				}
			}
		}
		if matched {
			out = append(out, full)
		}
	}
	return out, nil
}
