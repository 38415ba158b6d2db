package artifacts

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	classPattern    = regexp.MustCompile(`\b(?:class|interface)\s+([A-Za-z_$][\w$]*)`)
	jsFuncPattern   = regexp.MustCompile(`\bfunction\s*\*?\s+([A-Za-z_$][\w$]*)`)
	componentPat    = regexp.MustCompile(`\b(?:const|let|var)\s+([A-Z][\w$]*)\s*=\s*(?:\([^)]*\)|[A-Za-z_$][\w$]*)\s*=>`)
	jsVarPattern    = regexp.MustCompile(`\b(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*=`)
	pyDefPattern    = regexp.MustCompile(`(?m)^\s*(?:async\s+)?def\s+([A-Za-z_]\w*)`)
	goTypePattern   = regexp.MustCompile(`\btype\s+([A-Za-z_]\w*)\s+(?:struct|interface)`)
	goFuncPattern   = regexp.MustCompile(`\bfunc\s+(?:\([^)]*\)\s*)?([A-Za-z_]\w*)`)
	rustTypePattern = regexp.MustCompile(`\b(?:struct|enum|trait)\s+([A-Za-z_]\w*)`)
	rustFnPattern   = regexp.MustCompile(`\bfn\s+([A-Za-z_]\w*)`)
	cFuncPattern    = regexp.MustCompile(`(?m)^\s*(?:static\s+)?[A-Za-z_][\w:<>]*[\s*&]+([A-Za-z_]\w*)\s*\([^;{]*\)\s*\{`)
	structPattern   = regexp.MustCompile(`\b(?:struct|record|object)\s+([A-Za-z_]\w*)`)
	rubyDefPattern  = regexp.MustCompile(`(?m)^\s*def\s+([A-Za-z_]\w*[?!]?)`)
	phpFuncPattern  = regexp.MustCompile(`\bfunction\s+([A-Za-z_]\w*)`)
	kotlinFun       = regexp.MustCompile(`\bfun\s+([A-Za-z_]\w*)`)
	swiftFunc       = regexp.MustCompile(`\bfunc\s+([A-Za-z_]\w*)`)
	htmlTitle       = regexp.MustCompile(`(?is)<title[^>]*>\s*([^<]+?)\s*</title>`)
	htmlHeading     = regexp.MustCompile(`(?is)<h1[^>]*>\s*([^<]+?)\s*</h1>`)
	cssSelector     = regexp.MustCompile(`(?m)^\s*[.#]([A-Za-z_-][\w-]*)[^{]*\{`)
	sqlTable        = regexp.MustCompile("(?i)\\bcreate\\s+table\\s+(?:if\\s+not\\s+exists\\s+)?[`\"\\[]?(\\w+)")
	sqlFrom         = regexp.MustCompile(`(?i)\bfrom\s+(\w+)`)
	shellFunc       = regexp.MustCompile(`(?m)^\s*(?:function\s+)?([A-Za-z_]\w*)\s*\(\)\s*\{`)
	vueName         = regexp.MustCompile(`\bname\s*:\s*['"]([\w-]+)['"]`)
)

var jsPatterns = []*regexp.Regexp{classPattern, componentPat, jsFuncPattern, jsVarPattern}

// namePatterns lists the declarations tried per language, most telling first
var namePatterns = map[string][]*regexp.Regexp{
	"javascript": jsPatterns,
	"js":         jsPatterns,
	"jsx":        jsPatterns,
	"typescript": jsPatterns,
	"ts":         jsPatterns,
	"tsx":        jsPatterns,
	"vue":        {vueName, classPattern, jsFuncPattern},
	"python":     {classPattern, pyDefPattern},
	"py":         {classPattern, pyDefPattern},
	"go":         {goTypePattern, goFuncPattern},
	"golang":     {goTypePattern, goFuncPattern},
	"rust":       {rustTypePattern, rustFnPattern},
	"rs":         {rustTypePattern, rustFnPattern},
	"java":       {classPattern, structPattern},
	"csharp":     {classPattern, structPattern},
	"cs":         {classPattern, structPattern},
	"kotlin":     {classPattern, structPattern, kotlinFun},
	"kt":         {classPattern, structPattern, kotlinFun},
	"swift":      {classPattern, structPattern, swiftFunc},
	"cpp":        {classPattern, structPattern, cFuncPattern},
	"c":          {structPattern, cFuncPattern},
	"ruby":       {classPattern, rubyDefPattern},
	"rb":         {classPattern, rubyDefPattern},
	"php":        {classPattern, phpFuncPattern},
	"html":       {htmlTitle, htmlHeading},
	"xml":        {htmlTitle},
	"css":        {cssSelector},
	"scss":       {cssSelector},
	"sql":        {sqlTable, sqlFrom},
	"bash":       {shellFunc},
	"shell":      {shellFunc},
	"sh":         {shellFunc},
}

// genericPatterns apply to languages without their own entry
var genericPatterns = []*regexp.Regexp{classPattern, jsFuncPattern, goFuncPattern, pyDefPattern}

// purposeKeywords map telltale code fragments onto a descriptive name
var purposeKeywords = []struct {
	keyword string
	name    string
}{
	{"describe(", "test"},
	{"func test", "test"},
	{"unittest", "test"},
	{"listenandserve", "server"},
	{"app.listen", "server"},
	{"createserver", "server"},
	{"fetch(", "api_client"},
	{"axios", "api_client"},
	{"requests.", "api_client"},
	{"<form", "form"},
	{"select ", "query"},
	{"insert into", "query"},
	{"dockerfile", "dockerfile"},
	{"main(", "main"},
	{"config", "config"},
}

var unsafeChars = regexp.MustCompile(`[^\p{L}\p{N}_-]+`)

// Name derives a file base name for a code block. index is 1-based and only
// used when nothing better is found.
func Name(language, content string, index int) string {
	lang := strings.ToLower(language)

	patterns, ok := namePatterns[lang]
	if !ok {
		patterns = genericPatterns
	}
	for _, re := range patterns {
		if m := re.FindStringSubmatch(content); m != nil {
			if name := sanitize(m[1]); name != "" {
				return name
			}
		}
	}

	lower := strings.ToLower(content)
	for _, kw := range purposeKeywords {
		if strings.Contains(lower, kw.keyword) {
			return kw.name
		}
	}

	if lang == "" {
		lang = "text"
	}
	return fmt.Sprintf("%s_%d", sanitize(lang), index)
}

func sanitize(s string) string {
	s = unsafeChars.ReplaceAllString(strings.TrimSpace(s), "_")
	return strings.Trim(s, "_-")
}

// extensions maps fence languages onto file extensions
var extensions = map[string]string{
	"javascript": "js",
	"typescript": "ts",
	"python":     "py",
	"java":       "java",
	"cpp":        "cpp",
	"c":          "c",
	"csharp":     "cs",
	"ruby":       "rb",
	"go":         "go",
	"rust":       "rs",
	"php":        "php",
	"swift":      "swift",
	"kotlin":     "kt",
	"html":       "html",
	"css":        "css",
	"sql":        "sql",
	"bash":       "sh",
	"shell":      "sh",
	"json":       "json",
	"xml":        "xml",
	"yaml":       "yml",
	"markdown":   "md",
	"jsx":        "jsx",
	"tsx":        "tsx",
	"vue":        "vue",

	// Short tags models commonly emit
	"js":     "js",
	"ts":     "ts",
	"py":     "py",
	"golang": "go",
	"rs":     "rs",
	"rb":     "rb",
	"cs":     "cs",
	"kt":     "kt",
	"sh":     "sh",
	"yml":    "yml",
	"md":     "md",
	"scss":   "scss",
}

// Extension returns the file extension for a language, "txt" when unknown
func Extension(language string) string {
	if ext, ok := extensions[strings.ToLower(language)]; ok {
		return ext
	}
	return "txt"
}

// FileNames returns one file name per code block of the group, adding a
// numeric suffix when two blocks would share a name.
func FileNames(group CodeRequestGroup) []string {
	names := make([]string, len(group.Codes))
	used := make(map[string]bool, len(group.Codes))

	for i, code := range group.Codes {
		base := code.Name
		if base == "" {
			base = Name(code.Language, code.Content, i+1)
		}
		ext := Extension(code.Language)

		candidate := base + "." + ext
		for n := 2; used[candidate]; n++ {
			candidate = fmt.Sprintf("%s_%d.%s", base, n, ext)
		}
		used[candidate] = true
		names[i] = candidate
	}
	return names
}
