package tools

import (
	"encoding/json"
	"fmt"

	"github.com/ashwinyue/next-datakit/internal/model"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator 按工具参数 Schema 校验调用参数
type Validator struct {
	defs    []model.ToolDefinition
	schemas map[string]*jsonschema.Schema
}

// NewValidator 编译全部工具的参数 Schema
func NewValidator() (*Validator, error) {
	defs, err := Definitions()
	if err != nil {
		return nil, err
	}

	v := &Validator{defs: defs, schemas: make(map[string]*jsonschema.Schema, len(defs))}
	for _, d := range defs {
		raw, err := json.Marshal(d.Function.Parameters)
		if err != nil {
			return nil, fmt.Errorf("encode %s schema: %w", d.Function.Name, err)
		}
		compiled, err := jsonschema.CompileString(d.Function.Name+".schema.json", string(raw))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", d.Function.Name, err)
		}
		v.schemas[d.Function.Name] = compiled
	}
	return v, nil
}

// Definitions 工具定义
func (v *Validator) Definitions() []model.ToolDefinition {
	out := make([]model.ToolDefinition, len(v.defs))
	copy(out, v.defs)
	return out
}

// Validate 校验参数
func (v *Validator) Validate(name string, args any) error {
	schema, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("unknown tool: %s", name)
	}

	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode %s arguments: %w", name, err)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode %s arguments: %w", name, err)
	}

	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("%s arguments invalid: %w", name, err)
	}
	return nil
}
