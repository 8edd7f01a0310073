// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi/driver"
)

const spirvMagic = 0x07230203

type shader struct {
	gpu    *gpu
	module hal.ShaderModule
	entry  string
}

func (s *shader) Destroy() { s.gpu.dev.DestroyShaderModule(s.module) }

// compileShader creates a module from SPIR-V words or WGSL text.
// WGSL is validated here so that errors name the offending source.
func (g *gpu) compileShader(desc driver.ShaderDesc) (*shader, error) {
	var src hal.ShaderSource
	entry := desc.Entry
	if isSPIRV(desc.Code) {
		src.SPIRV = spirvWords(desc.Code)
		if entry == "" {
			entry = "main"
		}
	} else {
		text := string(desc.Code)
		e, err := wgslEntry(text, desc.Stage, entry)
		if err != nil {
			return nil, err
		}
		src.WGSL = text
		entry = e
	}
	module, err := g.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "rhi shader " + entry,
		Source: src,
	})
	if err != nil {
		return nil, errors.Wrapf(halError(err), "wgpu: shader module %q", entry)
	}
	return &shader{gpu: g, module: module, entry: entry}, nil
}

func isSPIRV(code []byte) bool {
	return len(code) >= 4 && len(code)%4 == 0 && binary.LittleEndian.Uint32(code) == spirvMagic
}

func spirvWords(code []byte) []uint32 {
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	return words
}

// wgslEntry validates src and resolves the entry point of stage.
// An empty name selects the only entry point of that stage.
func wgslEntry(src string, stage driver.ShaderStage, name string) (string, error) {
	ast, err := naga.Parse(src)
	if err != nil {
		return "", errors.Wrap(err, "wgpu: parse WGSL")
	}
	module, err := naga.LowerWithSource(ast, src)
	if err != nil {
		return "", errors.Wrap(err, "wgpu: lower WGSL")
	}
	verrs, err := naga.Validate(module)
	if err != nil {
		return "", errors.Wrap(err, "wgpu: validate WGSL")
	}
	if len(verrs) > 0 {
		return "", errors.Wrapf(verrs[0], "wgpu: invalid WGSL (%d errors)", len(verrs))
	}

	var want ir.ShaderStage
	switch stage {
	case driver.StageVertex:
		want = ir.StageVertex
	case driver.StageFragment:
		want = ir.StageFragment
	case driver.StageCompute:
		want = ir.StageCompute
	default:
		return "", errors.AssertionFailedf("wgpu: shader stage %d", stage)
	}
	var found []string
	for _, ep := range module.EntryPoints {
		if ep.Stage != want {
			continue
		}
		if ep.Name == name {
			return name, nil
		}
		found = append(found, ep.Name)
	}
	switch {
	case name != "":
		return "", errors.Newf("wgpu: no entry point %q for stage %d", name, stage)
	case len(found) == 1:
		return found[0], nil
	case len(found) == 0:
		return "", errors.Newf("wgpu: no entry point for stage %d", stage)
	}
	return "", errors.Newf("wgpu: entry point of stage %d is ambiguous: %v", stage, found)
}
