// Package command implements the SHIELD.absorb argument surface: arity
// validation, the ALGORITHM flag, and translation into a shield.Request
// the core package can execute. It is the one boundary at which raw
// command tokens are parsed; everything past ParseArgs deals only in
// validated Go values.
package command

import (
	"context"
	"errors"
	"strconv"
	"strings"

	shield "github.com/shieldrl/shield"
	"github.com/shieldrl/shield/store"
)

// ErrWrongArity is returned when the token count or layout doesn't
// match one of the four accepted shapes. The host is expected to
// surface this the same way it surfaces any other wrong-arity error,
// since arity checking is ordinarily the host's own job; this package
// only re-validates the portion specific to SHIELD.absorb's optional
// trailing arguments.
var ErrWrongArity = errors.New("ERR wrong number of arguments for 'shield.absorb' command")

// ErrNotInteger mirrors the host's own error for a token that fails to
// parse as a 64-bit integer, matching the wording used elsewhere in
// the store's command surface.
var ErrNotInteger = errors.New("ERR value is not an integer or out of range")

var algorithmNames = map[string]shield.Policy{
	"token_bucket":   shield.TokenBucket,
	"leaky_bucket":   shield.LeakyBucket,
	"fixed_window":   shield.FixedWindow,
	"sliding_window": shield.SlidingWindow,
}

// ParseArgs validates and decodes the tokens of one SHIELD.absorb
// invocation, including the leading command-name token, into a
// shield.Request. It implements the arity table of §4.7: 4 to 7
// tokens, with the ALGORITHM flag only ever appearing as the
// second-to-last token, followed by the algorithm name.
func ParseArgs(args []string) (shield.Request, error) {
	if len(args) < 4 || len(args) > 7 {
		return shield.Request{}, ErrWrongArity
	}

	key := args[1]

	capacity, err := parseInt(args[2])
	if err != nil {
		return shield.Request{}, err
	}

	period, err := parseInt(args[3])
	if err != nil {
		return shield.Request{}, err
	}

	units := int64(1)
	policy := shield.TokenBucket

	switch len(args) {
	case 4:
		// Defaults apply: units=1, algorithm=token_bucket.

	case 5:
		if isAlgorithmFlag(args[4]) {
			return shield.Request{}, ErrWrongArity
		}
		units, err = parseInt(args[4])
		if err != nil {
			return shield.Request{}, err
		}

	case 6:
		if !isAlgorithmFlag(args[4]) {
			return shield.Request{}, ErrWrongArity
		}
		policy, err = resolvePolicy(args[5])
		if err != nil {
			return shield.Request{}, err
		}

	case 7:
		units, err = parseInt(args[4])
		if err != nil {
			// A non-numeric arg[4] here means the caller put ALGORITHM
			// before units — e.g. "key cap period ALGORITHM name units" —
			// which is a layout the dispatcher rejects outright rather
			// than reinterpreting.
			return shield.Request{}, ErrWrongArity
		}
		if !isAlgorithmFlag(args[5]) {
			return shield.Request{}, ErrWrongArity
		}
		policy, err = resolvePolicy(args[6])
		if err != nil {
			return shield.Request{}, err
		}
	}

	return shield.Request{
		Key:      key,
		Policy:   policy,
		Capacity: capacity,
		Period:   period,
		Cost:     units,
	}, nil
}

func isAlgorithmFlag(s string) bool {
	return strings.EqualFold(s, "ALGORITHM")
}

func resolvePolicy(name string) (shield.Policy, error) {
	if name == "" {
		return "", shield.ErrAlgorithmMissing
	}
	p, ok := algorithmNames[name]
	if !ok {
		return "", shield.ErrUnknownAlgorithm
	}
	return p, nil
}

// Dispatch parses args and executes the resulting request against s,
// returning the same integer SHIELD.absorb returns to a client: the
// remaining capacity on acceptance, or shield.Deny on denial.
func Dispatch(ctx context.Context, s store.Store, args []string) (int64, error) {
	req, err := ParseArgs(args)
	if err != nil {
		return 0, err
	}
	decision, err := shield.Absorb(ctx, s, req)
	if err != nil {
		return 0, err
	}
	if !decision.Allowed {
		return shield.Deny, nil
	}
	return decision.Remaining, nil
}

func parseInt(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ErrNotInteger
	}
	return n, nil
}
