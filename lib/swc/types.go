package swc

import "encoding/json"

// ParseOptions is the request of OpParse.
type ParseOptions struct {
	Source string `json:"source"`
	// Syntax is "typescript" or "ecmascript". Empty lets the plugin choose.
	Syntax        string `json:"syntax,omitempty"`
	TSX           bool   `json:"tsx,omitempty"`
	Decorators    bool   `json:"decorators,omitempty"`
	DynamicImport bool   `json:"dynamic_import,omitempty"`
	Target        string `json:"target,omitempty"`
}

type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
	Ctxt  int `json:"ctxt"`
}

// Program is the root of a parsed module or script. Body items are kept as
// raw JSON because their shape is owned by the compiler.
type Program struct {
	Type        string            `json:"type"`
	Span        *Span             `json:"span,omitempty"`
	Body        []json.RawMessage `json:"body"`
	Interpreter *string           `json:"interpreter,omitempty"`
}

// PrintOptions is the request of OpPrint.
type PrintOptions struct {
	Program    *Program `json:"program"`
	Minify     bool     `json:"minify,omitempty"`
	SourceMaps bool     `json:"source_maps,omitempty"`
}

type PrintResult struct {
	Code string  `json:"code"`
	Map  *string `json:"map,omitempty"`
}

// AnalyzeOptions is the request of OpExtractDependencies.
type AnalyzeOptions struct {
	Source string `json:"source"`
	// Dynamic includes dynamic import() calls.
	Dynamic bool `json:"dynamic,omitempty"`
}

type Comment struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
	Span *Span  `json:"span,omitempty"`
}

// Dependency is one import, export-from or require found in a source file.
type Dependency struct {
	Kind            string    `json:"kind"`
	IsDynamic       bool      `json:"is_dynamic"`
	Specifier       string    `json:"specifier"`
	Line            int       `json:"line"`
	Col             int       `json:"col"`
	LeadingComments []Comment `json:"leading_comments,omitempty"`
}
