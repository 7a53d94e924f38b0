package command

import (
	"strconv"
	"strings"
)

// Parameters are the optional generation knobs forwarded to the remote model.
// A nil field was not supplied and must be left out of the request; the remote
// service owns the defaults.
type Parameters struct {
	MinLength         *int
	MaxLength         *int
	TopK              *int
	TopP              *float64
	Temperature       *float64
	RepetitionPenalty *float64
}

// Field is one supplied parameter under its wire name. Value is an int or a float64.
type Field struct {
	Name  string
	Value any
}

// Fields returns the supplied parameters in flag declaration order.
func (p Parameters) Fields() []Field {
	var out []Field
	addInt := func(name string, v *int) {
		if v != nil {
			out = append(out, Field{Name: name, Value: *v})
		}
	}
	addFloat := func(name string, v *float64) {
		if v != nil {
			out = append(out, Field{Name: name, Value: *v})
		}
	}

	addInt(FlagMinLength, p.MinLength)
	addInt(FlagMaxLength, p.MaxLength)
	addInt(FlagTopK, p.TopK)
	addFloat(FlagTopP, p.TopP)
	addFloat(FlagTemperature, p.Temperature)
	addFloat(FlagRepetitionPenalty, p.RepetitionPenalty)
	return out
}

// Map returns the supplied parameters keyed by wire name, or nil when none were given.
func (p Parameters) Map() map[string]any {
	fields := p.Fields()
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.Name] = f.Value
	}
	return out
}

// Empty reports whether no parameter was supplied.
func (p Parameters) Empty() bool {
	return len(p.Fields()) == 0
}

// Args renders the parameters as command-line flags that Parse accepts.
func (p Parameters) Args() []string {
	fields := p.Fields()
	args := make([]string, 0, 2*len(fields))
	for _, f := range fields {
		args = append(args, "--"+f.Name, formatValue(f.Value))
	}
	return args
}

// String renders the parameters as a space separated flag list.
func (p Parameters) String() string {
	return strings.Join(p.Args(), " ")
}

func formatValue(v any) string {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n)
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64)
	default:
		return ""
	}
}
