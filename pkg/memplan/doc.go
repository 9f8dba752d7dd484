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

// Package memplan implements ahead-of-time memory planning for compiled
// dataflow graphs executing on multiple parallel streams. The primary
// interface to memplan is the Planner type.
//
// # Graphs, Nodes, Slots
//
// A Graph is a sequence of Nodes in execution order. Every node has a
// unique, increasing execution index which serves as the liveness clock,
// and a stream it executes on. Order within a stream is total. Order
// across streams is only known through explicit dependencies: data and
// control edges between nodes on different streams, and synchronization
// edges supplied with the graph. A node has output slots and workspace
// slots, each with a size and a memory class. An output can alias one of
// the node's inputs (in-place or reference semantics). All slots connected
// by aliasing form a symbol and share a single memory block.
//
// # Liveness Analysis
//
// Before any memory is assigned the graph is validated and analyzed. The
// analyzer records a stream edge for every dependency crossing streams,
// derives transitive edges, and builds the symbols. It also decides which
// symbols may hand their memory over to later users (pre-reuse) and which
// ones may take over memory from earlier users (post-reuse). Graph inputs
// and outputs, merge and iterator nodes, and nodes explicitly marked as
// no-reuse restrict these. Finally it collects continuous groups, sets of
// slots which must be laid out contiguously.
//
// # Block Allocation
//
// Nodes are then processed in execution order. Each output and workspace
// either attaches to the block of its symbol, reuses a free block from a
// reuse pool, or gets a new block. A free block is eligible for reuse if
// its size matches exactly and every use of the block provably happens
// before the new user starts, either on the same stream or through the
// stream edges. Once the last consumer of a block has been processed the
// block is released into the pool of its stream.
//
// # Lifetime Reuse
//
// After the main pass blocks are sorted by size and smaller blocks whose
// lifetimes never cross those of a larger block are nested inside it as
// children. Children are laid out back-to-back inside their parent.
//
// # Offsets
//
// Finally blocks are sized, aligned, and laid out sequentially per memory
// class. Resolved offsets are written back into the slots of the graph.
// Blocks aliasing externally supplied graph input and output buffers
// (zero-copy blocks) are resolved relative to those buffers instead.
package memplan
