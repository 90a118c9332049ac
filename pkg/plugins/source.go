package plugins

import (
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// maxSourceFiles caps how many PHP files are analyzed per extension
const maxSourceFiles = 500

var (
	hookCallRegex   = regexp.MustCompile(`(?i)\badd_(action|filter)\s*\(`)
	functionRegex   = regexp.MustCompile(`(?mi)^[ \t]*function[ \t]+&?([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`)
	anyFuncRegex    = regexp.MustCompile(`(?i)\bfunction\s+`)
	classRegex      = regexp.MustCompile(`(?mi)^[ \t]*(?:abstract[ \t]+|final[ \t]+)?class[ \t]+[a-zA-Z_]`)
	globalRegex     = regexp.MustCompile(`(?i)\bglobal\s+([^;]+);`)
	globalVarRegex  = regexp.MustCompile(`\$([a-zA-Z_][a-zA-Z0-9_]*)`)
	createTblRegex  = regexp.MustCompile("(?i)CREATE\\s+TABLE\\s+(?:IF\\s+NOT\\s+EXISTS\\s+)?[`'\"]?([a-zA-Z][a-zA-Z0-9_]*)")
	prefixTblRegex  = regexp.MustCompile(`\$wpdb->prefix\s*\.\s*['"]([a-zA-Z0-9_]+)['"]`)
	riskyCallRegex  = regexp.MustCompile(`(?i)\b(eval|base64_decode|shell_exec|exec|system|passthru|unserialize|create_function)\s*\(`)
	coreFuncPrefix  = []string{"wp_", "get_", "add_", "remove_", "do_", "apply_", "is_", "has_", "__"}
	coreGlobalNames = map[string]bool{
		"wpdb": true, "wp_query": true, "wp_rewrite": true, "wp": true, "post": true,
		"wp_the_query": true, "wp_version": true, "wp_db_version": true, "tinymce_version": true,
		"required_php_version": true, "required_mysql_version": true, "wp_local_package": true,
		"pagenow": true, "current_user": true, "wp_filter": true, "wp_scripts": true, "wp_styles": true,
	}
	priorityConstants = map[string]int{
		"PHP_INT_MAX": math.MaxInt32,
		"PHP_INT_MIN": math.MinInt32,
	}
)

// SourceAnalysis is the result of statically analyzing an extension directory
type SourceAnalysis struct {
	Hooks        []HookRegistration
	Resources    []Resource
	Metrics      SourceMetrics
	SizeBytes    int64
	LastModified time.Time
}

// AnalyzeSource walks dir and extracts hook registrations, global resources,
// footprint and complexity metrics. Unreadable files are skipped.
func AnalyzeSource(dir string) (*SourceAnalysis, error) {
	result := &SourceAnalysis{}
	var phpFiles []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		result.SizeBytes += info.Size()
		if mtime := info.ModTime().UTC(); mtime.After(result.LastModified) {
			result.LastModified = mtime
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".php":
			if len(phpFiles) < maxSourceFiles {
				phpFiles = append(phpFiles, path)
			}
		case ".css", ".js":
			result.Metrics.AssetFiles++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(phpFiles)
	resources := make(map[Resource]bool)

	for _, path := range phpFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		content := string(data)

		result.Metrics.SourceFiles++
		result.Metrics.Lines += strings.Count(content, "\n")
		result.Metrics.Functions += len(anyFuncRegex.FindAllStringIndex(content, -1))
		result.Metrics.Classes += len(classRegex.FindAllStringIndex(content, -1))
		result.Metrics.RiskyCalls += len(riskyCallRegex.FindAllStringIndex(content, -1))

		result.Hooks = append(result.Hooks, extractHooks(content)...)

		for _, r := range extractResources(content) {
			resources[r] = true
		}
	}

	for r := range resources {
		result.Resources = append(result.Resources, r)
	}
	sortResources(result.Resources)

	return result, nil
}

// extractHooks finds add_action/add_filter calls with literal hook names
func extractHooks(content string) []HookRegistration {
	var hooks []HookRegistration

	for _, loc := range hookCallRegex.FindAllStringSubmatchIndex(content, -1) {
		kind := HookKindAction
		if strings.EqualFold(content[loc[2]:loc[3]], "filter") {
			kind = HookKindFilter
		}

		args := splitCallArgs(content[loc[1]:])
		if len(args) == 0 {
			continue
		}
		name, ok := stringLiteral(args[0])
		if !ok || name == "" {
			continue
		}

		reg := HookRegistration{
			HookName: name,
			Priority: DefaultHookPriority,
			Kind:     kind,
		}
		if len(args) > 1 {
			reg.Callback = normalizeCallback(args[1])
		}
		if len(args) > 2 {
			if p, ok := parsePriority(args[2]); ok {
				reg.Priority = p
			}
		}
		hooks = append(hooks, reg)
	}

	return hooks
}

// splitCallArgs splits the argument list of a call starting right after the
// opening parenthesis, honouring nesting and quoted strings.
func splitCallArgs(s string) []string {
	var (
		args    []string
		depth   int
		quote   byte
		start   int
		escaped bool
	)

	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}

		switch c {
		case '\'', '"':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth == 0 {
				if arg := strings.TrimSpace(s[start:i]); arg != "" {
					args = append(args, arg)
				}
				return args
			}
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		case ';':
			if depth == 0 {
				// Unterminated call
				return nil
			}
		}
	}

	return nil
}

func stringLiteral(arg string) (string, bool) {
	if len(arg) < 2 {
		return "", false
	}
	q := arg[0]
	if (q != '\'' && q != '"') || arg[len(arg)-1] != q {
		return "", false
	}
	return arg[1 : len(arg)-1], true
}

func normalizeCallback(arg string) string {
	if lit, ok := stringLiteral(arg); ok {
		return lit
	}
	lower := strings.ToLower(arg)
	if strings.HasPrefix(lower, "function") || strings.HasPrefix(lower, "static function") || strings.HasPrefix(lower, "fn(") || strings.HasPrefix(lower, "fn (") {
		return "{closure}"
	}
	return strings.Join(strings.Fields(arg), " ")
}

func parsePriority(arg string) (int, bool) {
	if p, err := strconv.Atoi(arg); err == nil {
		return p, true
	}
	if p, ok := priorityConstants[strings.ToUpper(arg)]; ok {
		return p, true
	}
	return 0, false
}

// extractResources finds global functions, globals and database tables
func extractResources(content string) []Resource {
	var out []Resource

	for _, m := range functionRegex.FindAllStringSubmatch(content, -1) {
		if !isCoreFunction(m[1]) {
			out = append(out, Resource{Kind: ResourceFunction, Name: strings.ToLower(m[1])})
		}
	}

	for _, m := range globalRegex.FindAllStringSubmatch(content, -1) {
		for _, v := range globalVarRegex.FindAllStringSubmatch(m[1], -1) {
			if !coreGlobalNames[v[1]] {
				out = append(out, Resource{Kind: ResourceGlobal, Name: v[1]})
			}
		}
	}

	for _, re := range []*regexp.Regexp{createTblRegex, prefixTblRegex} {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			name := strings.ToLower(m[1])
			// "CREATE TABLE IF NOT EXISTS $var" backtracks onto the IF keyword
			if name == "if" {
				continue
			}
			out = append(out, Resource{Kind: ResourceTable, Name: name})
		}
	}

	return out
}

func isCoreFunction(name string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range coreFuncPrefix {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func sortResources(list []Resource) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Kind != list[j].Kind {
			return list[i].Kind < list[j].Kind
		}
		return list[i].Name < list[j].Name
	})
}
