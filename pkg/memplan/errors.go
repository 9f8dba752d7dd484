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

import "fmt"

var (
	ErrFailedOption    = fmt.Errorf("memplan: failed to apply option")
	ErrInvalidConfig   = fmt.Errorf("memplan: invalid configuration")
	ErrInvalidClass    = fmt.Errorf("memplan: invalid memory class")
	ErrInvalidKind     = fmt.Errorf("memplan: invalid node kind")
	ErrMalformedGraph  = fmt.Errorf("memplan: malformed graph")
	ErrPolicyViolation = fmt.Errorf("memplan: policy violation")
	ErrSizeOverflow    = fmt.Errorf("memplan: size overflow")
	ErrInternalError   = fmt.Errorf("memplan: internal error")
)
