package compile

import (
	"fmt"
	"sort"

	"github.com/buger/jsonparser"
)

// Output is one file written by a build.
type Output struct {
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
}

// Result is what a build wrote.
type Result struct {
	Outputs  []Output
	Warnings []string
}

func (r Result) Paths() []string {
	out := make([]string, len(r.Outputs))
	for i, o := range r.Outputs {
		out[i] = o.Path
	}
	return out
}

func (r Result) TotalBytes() int64 {
	var n int64
	for _, o := range r.Outputs {
		n += o.Bytes
	}
	return n
}

// Outputs lists the output files recorded in an esbuild metafile, sorted by path.
func Outputs(metafile string) ([]Output, error) {
	var out []Output
	err := jsonparser.ObjectEach([]byte(metafile), func(key, value []byte, _ jsonparser.ValueType, _ int) error {
		n, err := jsonparser.GetInt(value, "bytes")
		if err != nil {
			return fmt.Errorf("output %s: %w", key, err)
		}
		out = append(out, Output{Path: string(key), Bytes: n})
		return nil
	}, "outputs")
	if err != nil {
		return nil, fmt.Errorf("read metafile: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
