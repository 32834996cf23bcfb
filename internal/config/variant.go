package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aprbench/aprloop/internal/agentloop"
	"github.com/aprbench/aprloop/internal/model"
)

// LoadVariant reads variants/<name>/config.json (gate overrides layered
// onto the named preset) and variants/<name>/prompts/{system,localize,patch}.txt,
// failing fast if any required file is missing — a hand-authored, fixed
// per-variant artifact set, not a hot-pluggable component system.
func LoadVariant(variantsDir, name string) (model.AblationConfig, agentloop.Prompts, error) {
	base, ok := model.Variants[name]
	if !ok {
		return model.AblationConfig{}, agentloop.Prompts{}, fmt.Errorf("unknown variant %q", name)
	}

	dir := filepath.Join(variantsDir, name)
	cfgPath := filepath.Join(dir, "config.json")
	if data, err := os.ReadFile(cfgPath); err == nil {
		var overrides variantOverrides
		if err := json.Unmarshal(data, &overrides); err != nil {
			return model.AblationConfig{}, agentloop.Prompts{}, fmt.Errorf("parse %s: %w", cfgPath, err)
		}
		base = overrides.apply(base)
	} else if !os.IsNotExist(err) {
		return model.AblationConfig{}, agentloop.Prompts{}, fmt.Errorf("read %s: %w", cfgPath, err)
	}

	system, err := readPromptFile(dir, "system.txt")
	if err != nil {
		return model.AblationConfig{}, agentloop.Prompts{}, err
	}
	localize, err := readPromptFile(dir, "localize.txt")
	if err != nil {
		return model.AblationConfig{}, agentloop.Prompts{}, err
	}
	patch, err := readPromptFile(dir, "patch.txt")
	if err != nil {
		return model.AblationConfig{}, agentloop.Prompts{}, err
	}

	return base, agentloop.Prompts{System: system, Localize: localize, Patch: patch}, nil
}

func readPromptFile(dir, name string) (string, error) {
	path := filepath.Join(dir, "prompts", name)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt file %s: %w", path, err)
	}
	return string(data), nil
}

// variantOverrides is the hand-authored config.json shape: only the
// three top-level gates may be overridden per variant, each as a
// pointer so an omitted field keeps the named preset's value.
type variantOverrides struct {
	TDDGate          *bool `json:"tdd_gate"`
	IndexRetrieval   *bool `json:"index_retrieval"`
	PatchCompileGate *bool `json:"patch_compile_gate"`
}

func (o variantOverrides) apply(base model.AblationConfig) model.AblationConfig {
	variant := base.Variant
	if o.TDDGate != nil {
		base.TDDGate = *o.TDDGate
	}
	if o.IndexRetrieval != nil {
		base.IndexRetrieval = *o.IndexRetrieval
	}
	if o.PatchCompileGate != nil {
		base.PatchCompileGate = *o.PatchCompileGate
	}
	if o.TDDGate != nil || o.IndexRetrieval != nil || o.PatchCompileGate != nil {
		base = model.DeriveSubFlags(base)
	}
	base.Variant = variant
	return base
}
