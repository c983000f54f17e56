package filtergraph

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrLabelReused is returned when a pad label is produced or consumed more than once.
	ErrLabelReused = errors.New("filtergraph: label used more than once")

	// ErrUndefinedLabel is returned when a chain consumes a label no earlier chain produced.
	ErrUndefinedLabel = errors.New("filtergraph: undefined label")

	// ErrEmptyChain is returned for a chain without filters.
	ErrEmptyChain = errors.New("filtergraph: chain has no filters")
)

// Arg is one filter option. An empty Key makes it positional.
type Arg struct {
	Key   string
	Value string
}

// KV returns a named option.
func KV(key string, value any) Arg {
	return Arg{Key: key, Value: formatValue(value)}
}

// Pos returns a positional option.
func Pos(value any) Arg {
	return Arg{Value: formatValue(value)}
}

// Filter is a single filter invocation such as scale=1280:720.
type Filter struct {
	Name string
	Args []Arg
}

// F builds a Filter.
func F(name string, args ...Arg) Filter {
	return Filter{Name: name, Args: args}
}

// String serializes the filter. Values are escaped for both the option level
// and the graph level of the ffmpeg grammar.
func (f Filter) String() string {
	if len(f.Args) == 0 {
		return f.Name
	}
	parts := make([]string, len(f.Args))
	for i, a := range f.Args {
		v := escapeGraph(escapeOption(a.Value))
		if a.Key == "" {
			parts[i] = v
		} else {
			parts[i] = a.Key + "=" + v
		}
	}
	return f.Name + "=" + strings.Join(parts, ":")
}

// Chain is a linear sequence of filters with labelled input and output pads.
type Chain struct {
	Inputs  []string
	Filters []Filter
	Outputs []string
}

// String serializes the chain as [in]f1,f2[out].
func (c Chain) String() string {
	var b strings.Builder
	for _, in := range c.Inputs {
		b.WriteString("[" + in + "]")
	}
	for i, f := range c.Filters {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.String())
	}
	for _, out := range c.Outputs {
		b.WriteString("[" + out + "]")
	}
	return b.String()
}

// Graph is an ordered list of chains, serialized with ';' separators.
type Graph struct {
	Chains []Chain
}

// Add appends a chain and returns the graph for chaining calls.
func (g *Graph) Add(inputs []string, filters []Filter, outputs ...string) *Graph {
	g.Chains = append(g.Chains, Chain{Inputs: inputs, Filters: filters, Outputs: outputs})
	return g
}

// String serializes the whole graph for -filter_complex or -vf.
func (g *Graph) String() string {
	parts := make([]string, len(g.Chains))
	for i, c := range g.Chains {
		parts[i] = c.String()
	}
	return strings.Join(parts, ";")
}

// Validate checks the label discipline ffmpeg enforces: every label is
// produced once and consumed at most once, and a consumed label is either
// an input stream specifier (e.g. "0:v", "1:a") or the output of an earlier
// chain. It returns the labels left unconsumed, which are the graph outputs
// callers map with -map.
func (g *Graph) Validate() ([]string, error) {
	produced := make(map[string]bool)
	consumed := make(map[string]bool)
	var order []string

	for i, c := range g.Chains {
		if len(c.Filters) == 0 {
			return nil, fmt.Errorf("chain %d: %w", i, ErrEmptyChain)
		}
		for _, in := range c.Inputs {
			if consumed[in] {
				return nil, fmt.Errorf("chain %d consumes [%s]: %w", i, in, ErrLabelReused)
			}
			if !produced[in] && !IsStreamSpecifier(in) {
				return nil, fmt.Errorf("chain %d consumes [%s]: %w", i, in, ErrUndefinedLabel)
			}
			consumed[in] = true
		}
		for _, out := range c.Outputs {
			if produced[out] {
				return nil, fmt.Errorf("chain %d produces [%s]: %w", i, out, ErrLabelReused)
			}
			produced[out] = true
			order = append(order, out)
		}
	}

	var outputs []string
	for _, l := range order {
		if !consumed[l] {
			outputs = append(outputs, l)
		}
	}
	return outputs, nil
}

// IsStreamSpecifier reports whether a label refers to an input file stream
// ("0:v", "1:a:0") rather than a pad produced inside the graph.
func IsStreamSpecifier(label string) bool {
	idx, _, ok := strings.Cut(label, ":")
	if !ok || idx == "" {
		return false
	}
	_, err := strconv.Atoi(idx)
	return err == nil
}

// Stream returns the stream specifier label for input file n and media type t.
func Stream(n int, t string) string {
	return strconv.Itoa(n) + ":" + t
}

// Label wraps a pad name in brackets for use as a -map argument.
func Label(name string) string {
	return "[" + name + "]"
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(v)
	}
}

var (
	optionEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	graphEscaper  = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`)
)

func escapeOption(s string) string { return optionEscaper.Replace(s) }

func escapeGraph(s string) string { return graphEscaper.Replace(s) }
