// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/rhi/driver"
)

// BindingLayout is the shader-reflected set of bindings of a pipeline. Its
// native signature is compiled once and shared by every pipeline and
// binding table created from it.
//
// Texture bindings take one slot in the resource heap and one in the
// sampler heap; buffer bindings take one resource slot.
type BindingLayout struct {
	refs
	native    driver.BindingLayout
	entries   []BindingEntry
	slots     map[int]bindingSlot
	resources int
	samplers  int
	destroyed atomic.Bool
}

// bindingSlot is the position of one binding inside a table's runs.
type bindingSlot struct {
	kind driver.BindingKind
	res  int
	smp  int
}

// CreateBindingLayout compiles the native signature of entries.
func (d *Device) CreateBindingLayout(entries ...BindingEntry) (*BindingLayout, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b BindingEntry) int { return a.Binding - b.Binding })

	l := &BindingLayout{entries: sorted, slots: make(map[int]bindingSlot, len(sorted))}
	for i, e := range sorted {
		invariant(i == 0 || sorted[i-1].Binding != e.Binding, "rhi: binding %d declared twice", e.Binding)
		s := bindingSlot{kind: e.Kind, res: l.resources, smp: -1}
		l.resources++
		if e.Kind == BindTexture {
			s.smp = l.samplers
			l.samplers++
		}
		l.slots[e.Binding] = s
	}

	native, err := d.gpu.NewBindingLayout(sorted)
	if err != nil {
		return nil, translate(err, "rhi: create binding layout")
	}
	l.native = native
	l.init(native.Destroy)
	return l, nil
}

// Entries returns the bindings ordered by binding number.
func (l *BindingLayout) Entries() []BindingEntry { return slices.Clone(l.entries) }

// Slots returns how many resource and sampler slots a table of l takes.
func (l *BindingLayout) Slots() (resources, samplers int) { return l.resources, l.samplers }

// Destroy releases the layout once no pipeline or table uses it.
func (l *BindingLayout) Destroy() {
	if l.destroyed.CompareAndSwap(false, true) {
		l.drop()
	}
}

func (l *BindingLayout) slot(binding int, kinds ...driver.BindingKind) bindingSlot {
	s, ok := l.slots[binding]
	invariant(ok, "rhi: binding %d is not in the layout", binding)
	invariant(slices.Contains(kinds, s.kind), "rhi: binding %d is a %s binding", binding, s.kind)
	return s
}

// BindingTable is one allocation of descriptor slots sized to a
// BindingLayout.
//
// Writes are immediate. A table must not be written while a submission
// that uses it is in flight; allocate one table per frame in flight
// instead.
type BindingTable struct {
	refs
	dev      *Device
	layout   *BindingLayout
	resBase  int
	smpBase  int
	inflight atomic.Int32

	mu    sync.Mutex
	bound map[int]retainer

	destroyed atomic.Bool
}

// CreateBindingTable reserves descriptor slots for layout. It fails with
// ErrOutOfDescriptors when a heap has no run large enough.
func (d *Device) CreateBindingTable(layout *BindingLayout) (*BindingTable, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	resBase, ok := d.resSlots.Alloc(layout.resources)
	if !ok {
		return nil, errors.Wrapf(ErrOutOfDescriptors, "rhi: %d resource slots (%d of %d used)",
			layout.resources, d.resSlots.Used(), d.resSlots.Cap())
	}
	smpBase, ok := d.smpSlots.Alloc(layout.samplers)
	if !ok {
		d.resSlots.Free(resBase, layout.resources)
		return nil, errors.Wrapf(ErrOutOfDescriptors, "rhi: %d sampler slots (%d of %d used)",
			layout.samplers, d.smpSlots.Used(), d.smpSlots.Cap())
	}
	layout.retain()
	t := &BindingTable{
		dev:     d,
		layout:  layout,
		resBase: resBase,
		smpBase: smpBase,
		bound:   make(map[int]retainer),
	}
	t.init(func() {
		t.mu.Lock()
		for _, r := range t.bound {
			r.drop()
		}
		t.bound = nil
		t.mu.Unlock()
		d.resSlots.Free(resBase, layout.resources)
		d.smpSlots.Free(smpBase, layout.samplers)
		layout.drop()
	})
	Logger().Debug("rhi: binding table", "resources", resBase, "samplers", smpBase)
	return t, nil
}

// Layout returns the layout the table was created for.
func (t *BindingTable) Layout() *BindingLayout { return t.layout }

// BindTexture writes tex and sampler s into texture binding.
func (t *BindingTable) BindTexture(binding int, tex *Texture, s Sampler) {
	slot := t.checkWrite(binding, BindTexture)
	tex.checkAlive()
	invariant(tex.dev == t.dev, "rhi: texture of another device")
	invariant(tex.Usage().Has(driver.UsageSampled), "rhi: %s texture without sampled usage", tex.desc.Format)
	t.dev.resHeap.SetTexture(t.resBase+slot.res, tex.native)
	t.dev.smpHeap.SetSampler(t.smpBase+slot.smp, s)
	t.keep(binding, tex)
}

// BindBuffer writes the range [off, off+size) of buf into a uniform or
// storage buffer binding.
func (t *BindingTable) BindBuffer(binding int, buf *Buffer, off, size int64) {
	slot := t.checkWrite(binding, BindUniformBuffer, BindStorageBuffer)
	buf.checkAlive()
	invariant(buf.dev == t.dev, "rhi: buffer of another device")
	invariant(off >= 0 && size > 0 && off+size <= buf.size,
		"rhi: bound range [%d,%d) outside buffer of %d bytes", off, off+size, buf.size)
	t.dev.resHeap.SetBuffer(t.resBase+slot.res, buf.native, off, size)
	t.keep(binding, buf)
}

// Destroy returns the slots to the device once no submission uses the
// table.
func (t *BindingTable) Destroy() {
	if t.destroyed.CompareAndSwap(false, true) {
		t.drop()
	}
}

func (t *BindingTable) checkWrite(binding int, kinds ...driver.BindingKind) bindingSlot {
	invariant(!t.destroyed.Load(), "rhi: write to a destroyed binding table")
	if t.inflight.Load() > 0 {
		t.dev.collect()
	}
	invariant(t.inflight.Load() == 0, "rhi: write to a binding table used by a pending submission")
	return t.layout.slot(binding, kinds...)
}

func (t *BindingTable) keep(binding int, r retainer) {
	r.retain()
	t.mu.Lock()
	old := t.bound[binding]
	t.bound[binding] = r
	t.mu.Unlock()
	if old != nil {
		old.drop()
	}
}

// textures returns the textures currently bound.
func (t *BindingTable) textures() []*Texture {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*Texture
	for _, r := range t.bound {
		if tex, ok := r.(*Texture); ok {
			out = append(out, tex)
		}
	}
	return out
}

// retired is called when a submission using the table retires.
func (t *BindingTable) retired() { t.inflight.Add(-1) }
