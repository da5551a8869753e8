// MIT License
//
// Copyright (c) 2023 EASE lab
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package ptables

// AccessClass The protection class of a leaf mapping, derived from the
// attribute bits of every entry in its translation chain.
type AccessClass uint8

const (
	UserRead AccessClass = iota
	UserReadExec
	UserReadWrite
	UserReadWriteExec
	KernelRead
	KernelReadExec
	KernelReadWrite
	KernelReadWriteExec

	// NumAccessClasses Number of distinct classes
	NumAccessClasses = 8
)

// String Returns the class name
func (c AccessClass) String() string {
	switch c {
	case UserRead:
		return "UserRead"
	case UserReadExec:
		return "UserReadExec"
	case UserReadWrite:
		return "UserReadWrite"
	case UserReadWriteExec:
		return "UserReadWriteExec"
	case KernelRead:
		return "KernelRead"
	case KernelReadExec:
		return "KernelReadExec"
	case KernelReadWrite:
		return "KernelReadWrite"
	case KernelReadWriteExec:
		return "KernelReadWriteExec"
	}

	return "Unknown"
}

// Classify Derives the access class of the mapping resolved by the given
// translation chain. UserAccessible and Write combine with AND across the
// chain, so the most restrictive level wins; NoExecute combines with OR, so
// any level can revoke execution. The chain stops at the first entry with
// LargePage set: pde and pte must be zero for a huge page, pte must be zero
// for a large page, and the zero entries are then never consulted.
func Classify(pml4e, pdpte, pde, pte Entry) AccessClass {
	userAccessible := pml4e.UserAccessible() && pdpte.UserAccessible()
	write := pml4e.Write() && pdpte.Write()
	noExecute := pml4e.NoExecute() || pdpte.NoExecute()

	if !pdpte.LargePage() {
		userAccessible = userAccessible && pde.UserAccessible()
		write = write && pde.Write()
		noExecute = noExecute || pde.NoExecute()

		if !pde.LargePage() {
			userAccessible = userAccessible && pte.UserAccessible()
			write = write && pte.Write()
			noExecute = noExecute || pte.NoExecute()
		}
	}

	if userAccessible {
		if write {
			if noExecute {
				return UserReadWrite
			}
			return UserReadWriteExec
		}
		if noExecute {
			return UserRead
		}
		return UserReadExec
	}

	if write {
		if noExecute {
			return KernelReadWrite
		}
		return KernelReadWriteExec
	}
	if noExecute {
		return KernelRead
	}
	return KernelReadExec
}
