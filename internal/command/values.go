package command

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

var (
	errNotDecimal = errors.New("only plain decimal numbers are accepted")
	errNotFinite  = errors.New("value must be a finite number")
)

// decimalInt is a pflag.Value that accepts base-10 integers only. pflag's own
// int flag also takes 0x, 0o and 0b prefixes.
type decimalInt struct {
	v *int
}

func (d *decimalInt) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	d.v = &n
	return nil
}

func (d *decimalInt) String() string {
	if d.v == nil {
		return ""
	}
	return strconv.Itoa(*d.v)
}

func (d *decimalInt) Type() string { return "int" }

// finiteFloat is a pflag.Value for decimal floats. Hex floats, NaN and
// infinities are rejected since they cannot be sent as JSON.
type finiteFloat struct {
	v *float64
}

func (f *finiteFloat) Set(s string) error {
	if strings.ContainsAny(s, "xXpP_") {
		return errNotDecimal
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return errNotFinite
	}
	f.v = &n
	return nil
}

func (f *finiteFloat) String() string {
	if f.v == nil {
		return ""
	}
	return strconv.FormatFloat(*f.v, 'g', -1, 64)
}

func (f *finiteFloat) Type() string { return "float" }
