// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/bureau-foundation/warden/lib/callctx"
)

// conditionEnv is the variable set a Condition expression sees:
//
//	caller     string          caller identity
//	class      string          caller class
//	entry      string          entry point
//	scope      string          primary scope, "" when absent
//	operation  string
//	method     string
//	params     map[string]any  call parameters
func conditionEnv(rc callctx.RequestContext, operation, method string, params map[string]any) map[string]any {
	if params == nil {
		params = map[string]any{}
	}
	return map[string]any{
		"caller":    rc.CallerID(),
		"class":     string(rc.CallerClass()),
		"entry":     string(rc.EntryPoint()),
		"scope":     rc.Scope(),
		"operation": operation,
		"method":    method,
		"params":    params,
	}
}

func compileCondition(source string) (*vm.Program, error) {
	if source == "" {
		return nil, nil
	}
	program, err := expr.Compile(source,
		expr.Env(map[string]any{
			"caller":    "",
			"class":     "",
			"entry":     "",
			"scope":     "",
			"operation": "",
			"method":    "",
			"params":    map[string]any{},
		}),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("compiling condition %q: %w", source, err)
	}
	return program, nil
}

func runCondition(program *vm.Program, env map[string]any) (bool, error) {
	output, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("condition returned %T, want bool", output)
	}
	return result, nil
}
