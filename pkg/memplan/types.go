// Copyright The NRI Plugins Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memplan

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MemoryClass represents known classes of memory.
type MemoryClass int

const (
	ClassHBM  MemoryClass = iota // default, high-bandwidth device memory
	ClassP2P                     // device memory addressable by peer devices
	ClassHost                    // pinned host memory
)

var (
	classToString = map[MemoryClass]string{
		ClassHBM:  "HBM",
		ClassP2P:  "P2P",
		ClassHost: "HOST",
	}
	stringToClass = map[string]MemoryClass{
		"HBM":  ClassHBM,
		"P2P":  ClassP2P,
		"HOST": ClassHost,
	}
	allClasses = []MemoryClass{ClassHBM, ClassP2P, ClassHost}
)

// ParseMemoryClass parses the given string into a memory class.
func ParseMemoryClass(str string) (MemoryClass, error) {
	if c, ok := stringToClass[strings.ToUpper(str)]; ok {
		return c, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrInvalidClass, str)
}

// MustParseMemoryClass parses the given string into a memory class.
// It panicks on failure.
func MustParseMemoryClass(str string) MemoryClass {
	c, err := ParseMemoryClass(str)
	if err == nil {
		return c
	}

	panic(err)
}

// Mask returns the ClassMask for the memory class.
func (c MemoryClass) Mask() ClassMask {
	return ClassMask(1 << c)
}

// IsValid returns true if the memory class is valid/known.
func (c MemoryClass) IsValid() bool {
	_, ok := classToString[c]
	return ok
}

// String returns a string representation of the memory class.
func (c MemoryClass) String() string {
	if str, ok := classToString[c]; ok {
		return str
	}

	return fmt.Sprintf("%%!(memplan:Bad-Class %d)", c)
}

// MarshalJSON is the json.Marshaller for MemoryClass.
func (c MemoryClass) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON is the json.Unmarshaller for MemoryClass.
func (c *MemoryClass) UnmarshalJSON(data []byte) error {
	i := 0
	if err := json.Unmarshal(data, &i); err == nil {
		if _, ok := classToString[MemoryClass(i)]; ok {
			*c = MemoryClass(i)
			return nil
		}
		return fmt.Errorf("%w: %d", ErrInvalidClass, i)
	}

	str := ""
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidClass, err)
	}

	parsed, err := ParseMemoryClass(str)
	if err != nil {
		return err
	}

	*c = parsed
	return nil
}

// ClassMask represents a set of memory classes as a bit mask.
type ClassMask int

const (
	ClassMaskHBM  ClassMask = 1 << ClassHBM            // default device memory
	ClassMaskP2P  ClassMask = 1 << ClassP2P            // peer-addressable memory
	ClassMaskHost ClassMask = 1 << ClassHost           // pinned host memory
	ClassMaskAll  ClassMask = (ClassMaskHost << 1) - 1 // all classes of memory
)

// NewClassMask returns a ClassMask containing the given memory classes.
func NewClassMask(classes ...MemoryClass) ClassMask {
	m := ClassMask(0)
	for _, c := range classes {
		m |= (1 << c)
	}
	return m & ClassMaskAll
}

// ParseClassMask parses the given comma-separated string into a ClassMask.
func ParseClassMask(str string) (ClassMask, error) {
	m := ClassMask(0)
	for _, s := range strings.Split(str, ",") {
		c, err := ParseMemoryClass(strings.TrimSpace(s))
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidClass, str)
		}
		m |= c.Mask()
	}
	return m, nil
}

// Slice returns the memory classes present in the ClassMask.
func (m ClassMask) Slice() []MemoryClass {
	var classes []MemoryClass
	for _, c := range allClasses {
		if (m & c.Mask()) != 0 {
			classes = append(classes, c)
		}
	}
	return classes
}

// Contains returns true if all the given classes are present in the ClassMask.
func (m ClassMask) Contains(classes ...MemoryClass) bool {
	for _, c := range classes {
		if (m & c.Mask()) == 0 {
			return false
		}
	}
	return true
}

// String returns a string representation of the ClassMask.
func (m ClassMask) String() string {
	str := strings.Builder{}
	sep := ""
	for _, c := range m.Slice() {
		str.WriteString(sep)
		str.WriteString(c.String())
		sep = ","
	}
	return str.String()
}

// NodeKind is the closed set of node classifications the planner
// distinguishes. Every other property of a node relevant for memory
// planning is carried as plain flags on the Node itself.
type NodeKind int

const (
	KindOrdinary    NodeKind = iota // ordinary computation
	KindInput                       // graph input, fed from an external buffer
	KindOutput                      // graph output sink, consumes graph results
	KindConstant                    // constant-like, lives outside the planned arena
	KindAtomicClear                 // clears memory of atomic targets
	KindMerge                       // control flow merge
	KindIterator                    // iterator producer
)

var (
	kindToString = map[NodeKind]string{
		KindOrdinary:    "ordinary",
		KindInput:       "input",
		KindOutput:      "output",
		KindConstant:    "constant",
		KindAtomicClear: "atomic-clear",
		KindMerge:       "merge",
		KindIterator:    "iterator",
	}
	stringToKind = map[string]NodeKind{
		"":             KindOrdinary,
		"ordinary":     KindOrdinary,
		"input":        KindInput,
		"data":         KindInput,
		"output":       KindOutput,
		"netoutput":    KindOutput,
		"constant":     KindConstant,
		"atomic-clear": KindAtomicClear,
		"merge":        KindMerge,
		"iterator":     KindIterator,
	}
)

// ParseNodeKind parses the given string into a NodeKind.
func ParseNodeKind(str string) (NodeKind, error) {
	if k, ok := stringToKind[strings.ToLower(str)]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidKind, str)
}

// String returns a string representation of the node kind.
func (k NodeKind) String() string {
	if str, ok := kindToString[k]; ok {
		return str
	}
	return fmt.Sprintf("%%!(memplan:Bad-Kind %d)", k)
}

// MarshalJSON is the json.Marshaller for NodeKind.
func (k NodeKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON is the json.Unmarshaller for NodeKind.
func (k *NodeKind) UnmarshalJSON(data []byte) error {
	str := ""
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidKind, err)
	}
	parsed, err := ParseNodeKind(str)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// SlotKind is the kind of a slot.
type SlotKind int

const (
	SlotOutput           SlotKind = iota // ordinary output
	SlotWorkspace                        // temporary memory of a node
	SlotOutputDescriptor                 // output carrying descriptor data
)

// String returns a string representation of the slot kind.
func (k SlotKind) String() string {
	switch k {
	case SlotOutput:
		return "output"
	case SlotWorkspace:
		return "workspace"
	case SlotOutputDescriptor:
		return "descriptor"
	}
	return fmt.Sprintf("%%!(memplan:Bad-SlotKind %d)", int(k))
}

// ReuseOrder picks which eligible block a reuse pool hands out.
type ReuseOrder int

const (
	// LatestReleased hands out the most recently released eligible block.
	LatestReleased ReuseOrder = iota
	// EarliestReleased hands out the earliest released eligible block.
	EarliestReleased
)

// String returns a string representation of the reuse order.
func (o ReuseOrder) String() string {
	if o == EarliestReleased {
		return "earliest-released"
	}
	return "latest-released"
}

// Convention decides when memory released by the inputs of a node becomes
// available for reuse.
type Convention int

const (
	// LastReleaseLastReuse makes memory released by the inputs of a node
	// available only to nodes following it.
	LastReleaseLastReuse Convention = iota
	// LastReleaseFirstReuse makes memory released by the inputs of a node
	// available already to the outputs and workspaces of the node itself.
	LastReleaseFirstReuse
)

// String returns a string representation of the convention.
func (c Convention) String() string {
	if c == LastReleaseFirstReuse {
		return "last-release-first-reuse"
	}
	return "last-release-last-reuse"
}

// ReleaseOrder is the order in which the input edges of a node are walked
// when releasing blocks.
type ReleaseOrder int

const (
	// InputOrder releases blocks in the order of the node's inputs.
	InputOrder ReleaseOrder = iota
	// ReverseInputOrder releases blocks in reverse input order.
	ReverseInputOrder
)

// String returns a string representation of the release order.
func (o ReleaseOrder) String() string {
	if o == ReverseInputOrder {
		return "reverse-input-order"
	}
	return "input-order"
}
