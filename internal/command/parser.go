// Package command parses the chat line that selects a remote model and its
// generation parameters.
package command

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/pflag"
)

// Flag names as they appear on the command line and in the remote request.
const (
	FlagMinLength         = "min_length"
	FlagMaxLength         = "max_length"
	FlagTopK              = "top_k"
	FlagTopP              = "top_p"
	FlagTemperature       = "temperature"
	FlagRepetitionPenalty = "repetition_penalty"
)

// ExampleEndpoint is offered to users who have not configured a model yet.
const ExampleEndpoint = "microsoft/DialoGPT-large"

const endpointHelp = "Name of the bot in HuggingFace. For example, " + ExampleEndpoint + "."

var (
	errMissingEndpoint = errors.New("missing endpoint")
	errExtraArgs       = errors.New("unexpected positional arguments")
	errBadEndpoint     = errors.New("endpoint must look like <namespace>/<name>")
)

type flagKind int

const (
	kindInt flagKind = iota
	kindFloat
)

type flagSpec struct {
	name string
	kind flagKind
	help string
}

var flagSpecs = []flagSpec{
	{FlagMinLength, kindInt, "Integer to define the minimum length **in tokens** of the output."},
	{FlagMaxLength, kindInt, "Integer to define the maximum length **in tokens** of the output."},
	{FlagTopK, kindInt, "Integer to define the top tokens considered within the sample operation to create new text."},
	{FlagTopP, kindFloat, "Float to define the tokens that are within the sample operation of text generation. Tokens are added from most to least probable until the sum of their probabilities exceeds top_p."},
	{FlagTemperature, kindFloat, "Float (0.0-100.0). The temperature of the sampling operation. 1 means regular sampling, 0 means always take the highest score, 100.0 is getting closer to uniform probability."},
	{FlagRepetitionPenalty, kindFloat, "Float (0.0-100.0). The more a token is used within generation the more it is penalized to not be picked in successive generation passes."},
}

// Command is a validated configuration line.
type Command struct {
	Endpoint string
	Params   Parameters
}

// Args renders the command back into tokens that Parse accepts.
func (c Command) Args() []string {
	return append([]string{c.Endpoint}, c.Params.Args()...)
}

func (c Command) String() string {
	return strings.Join(c.Args(), " ")
}

// Parser holds the endpoint pattern and flag grammar. It is immutable after
// NewParser and safe for concurrent use.
type Parser struct {
	endpoint *regexp.Regexp
	usage    string
}

// NewParser builds the parser once for the lifetime of the process.
func NewParser() *Parser {
	p := &Parser{
		endpoint: regexp.MustCompile(`^[A-Za-z0-9.\-]+/[A-Za-z0-9.\-]+$`),
	}
	p.usage = p.buildUsage()
	return p
}

// Parse turns one chat line into a Command. The second result is false when the
// line is not a valid command; no partial command is ever returned.
func (p *Parser) Parse(line string) (Command, bool) {
	cmd, err := p.parse(line)
	if err != nil {
		slog.Debug("not a configuration command", "line", line, "error", err)
		return Command{}, false
	}
	return cmd, true
}

func (p *Parser) parse(line string) (Command, error) {
	tokens, err := shlex.Split(line)
	if err != nil {
		return Command{}, fmt.Errorf("tokenize: %w", err)
	}

	fs := newFlagSet()
	if err := fs.Parse(tokens); err != nil {
		return Command{}, err
	}

	switch rest := fs.Args(); {
	case len(rest) == 0:
		return Command{}, errMissingEndpoint
	case len(rest) > 1:
		return Command{}, fmt.Errorf("%w: %q", errExtraArgs, rest[1:])
	}

	endpoint := fs.Arg(0)
	if !p.endpoint.MatchString(endpoint) {
		return Command{}, fmt.Errorf("%w: %q", errBadEndpoint, endpoint)
	}

	return Command{Endpoint: endpoint, Params: collectParams(fs)}, nil
}

// Usage describes the command grammar for users who have not configured a model.
func (p *Parser) Usage() string {
	return p.usage
}

func (p *Parser) buildUsage() string {
	var b strings.Builder
	b.WriteString("usage: <endpoint>")
	for _, spec := range flagSpecs {
		placeholder := "N"
		if spec.kind == kindFloat {
			placeholder = "F"
		}
		fmt.Fprintf(&b, " [--%s %s]", spec.name, placeholder)
	}
	b.WriteString("\n\npositional arguments:\n")
	fmt.Fprintf(&b, "  endpoint  %s\n\n", endpointHelp)
	b.WriteString("optional arguments:\n")
	b.WriteString(newFlagSet().FlagUsages())
	return strings.TrimRight(b.String(), "\n")
}

// newFlagSet returns a fresh flag set; pflag keeps parse state on the set so it
// cannot be shared between calls.
func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("hfrelay", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	for _, spec := range flagSpecs {
		switch spec.kind {
		case kindInt:
			fs.Var(&decimalInt{}, spec.name, spec.help)
		case kindFloat:
			fs.Var(&finiteFloat{}, spec.name, spec.help)
		}
	}
	return fs
}

func collectParams(fs *pflag.FlagSet) Parameters {
	var params Parameters
	ints := map[string]**int{
		FlagMinLength: &params.MinLength,
		FlagMaxLength: &params.MaxLength,
		FlagTopK:      &params.TopK,
	}
	floats := map[string]**float64{
		FlagTopP:              &params.TopP,
		FlagTemperature:       &params.Temperature,
		FlagRepetitionPenalty: &params.RepetitionPenalty,
	}

	for name, dst := range ints {
		*dst = fs.Lookup(name).Value.(*decimalInt).v
	}
	for name, dst := range floats {
		*dst = fs.Lookup(name).Value.(*finiteFloat).v
	}
	return params
}
