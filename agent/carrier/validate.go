package carrier

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Default PRO formats per carrier. The in-house WE prefix is tried
// first, then the carrier-specific shapes, then the generic LTL digit
// run.
var defaultPROFormats = []PROFormat{
	{Carrier: "in_house", Pattern: `^WE[0-9]{9}$`},
	{Carrier: "ups", Pattern: `^1Z[A-Z0-9]{16}$`},
	{Carrier: "fedex", Pattern: `^[0-9]{12}$`},
	{Carrier: "ltl", Pattern: `^[0-9]{7,10}$`},
}

// PROFormat names one carrier's PRO shape.
type PROFormat struct {
	Carrier string
	Pattern string
}

// Validator is a pure function of the configured pattern set: the same
// input always yields the same answer.
type Validator struct {
	formats []compiledFormat
}

type compiledFormat struct {
	carrier string
	re      *regexp.Regexp
}

// NewValidator compiles the given formats, or the defaults when none
// are supplied. Map entries are applied in carrier-name order so the
// validator stays deterministic; the WE prefix always wins first.
func NewValidator(overrides map[string]string) (*Validator, error) {
	formats := defaultPROFormats
	if len(overrides) > 0 {
		carriers := make([]string, 0, len(overrides))
		for c := range overrides {
			carriers = append(carriers, c)
		}
		sort.Strings(carriers)

		formats = make([]PROFormat, 0, len(overrides))
		for _, c := range carriers {
			formats = append(formats, PROFormat{Carrier: c, Pattern: overrides[c]})
		}
		sort.SliceStable(formats, func(i, j int) bool {
			return formats[i].Carrier == "in_house" && formats[j].Carrier != "in_house"
		})
	}

	v := &Validator{formats: make([]compiledFormat, 0, len(formats))}
	for _, f := range formats {
		re, err := regexp.Compile(f.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile pro format for %s: %w", f.Carrier, err)
		}
		v.formats = append(v.formats, compiledFormat{carrier: f.Carrier, re: re})
	}
	return v, nil
}

// ValidatePRO reports the first carrier whose format matches.
func (v *Validator) ValidatePRO(pro string) (string, bool) {
	pro = strings.ToUpper(strings.TrimSpace(pro))
	if pro == "" {
		return "", false
	}
	for _, f := range v.formats {
		if f.re.MatchString(pro) {
			return f.carrier, true
		}
	}
	return "", false
}
