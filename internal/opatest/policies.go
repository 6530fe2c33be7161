package opatest

import "maps"

// Policies used across client tests, keyed by module name.
var policies = map[string]string{
	"test": `package test

p_bool if true

p_bool_false if input == false

has_type.type := type_name(input)

compound_input.foo := "bar" if input == {"name": "alice", "list": [1, 2, true]}

compound_result.allowed := true
`,
	"slash": `package has["weird/package"].but

it_is := true
`,
	"token": `package token

p := true
`,
	"condfail": `package condfail

p[k] := v if some v, k in input
`,
	"echo": `package echo

result := input
`,
	"main": `package system.main

main.has_input if input

main.different_input if input.foo == "bar"
`,
}

// Policies returns a copy of the standard test policies.
func Policies() map[string]string {
	return maps.Clone(policies)
}

// WithPolicies adds every module in mods.
func WithPolicies(mods map[string]string) Option {
	return func(s *Server) error {
		for name, src := range mods {
			if err := WithPolicy(name, src)(s); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithStandardPolicies adds the modules returned by [Policies].
func WithStandardPolicies() Option {
	return WithPolicies(policies)
}
