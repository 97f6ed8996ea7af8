// Copyright 2025 Noctools
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package serrors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noctools/prefixgen/pkg/private/serrors"
)

func TestNew(t *testing.T) {
	err1 := serrors.New("err msg")
	err2 := serrors.New("err msg")

	assert.Equal(t, err1.Error(), err2.Error())
	assert.False(t, errors.Is(err1, err2), "distinct instances are distinct errors")
	assert.True(t, errors.Is(err1, err1))
}

func TestWrapIs(t *testing.T) {
	sentinel := errors.New("base")
	wrapped := serrors.Wrap("query failed", sentinel, "target", "AS-EXAMPLE")

	assert.True(t, errors.Is(wrapped, sentinel))
	assert.Equal(t, `query failed {target=AS-EXAMPLE}: base`, wrapped.Error())
}

func TestJoinIs(t *testing.T) {
	sentinel := errors.New("sentinel")
	cause := errors.New("cause")

	joined := serrors.Join(sentinel, cause, "key", "value")
	assert.True(t, errors.Is(joined, sentinel))
	assert.True(t, errors.Is(joined, cause))
	assert.Equal(t, `sentinel {key=value}: cause`, joined.Error())

	assert.NoError(t, serrors.Join(nil, nil, "key", "value"))
}

func TestContextSorted(t *testing.T) {
	err := serrors.New("msg", "b", 2, "a", 1, "c", 3)
	assert.Equal(t, "msg {a=1; b=2; c=3}", err.Error())
}

func TestIsTimeout(t *testing.T) {
	assert.False(t, serrors.IsTimeout(serrors.New("plain")))
	assert.True(t, serrors.IsTimeout(serrors.Wrap("outer", timeoutErr{})))
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "timeout" }
func (timeoutErr) Timeout() bool { return true }

func TestList(t *testing.T) {
	var l serrors.List
	assert.NoError(t, l.ToError())

	l = append(l, serrors.New("first"), serrors.New("second"))
	err := l.ToError()
	assert.Error(t, err)
	assert.Equal(t, "[ first; second ]", fmt.Sprint(err))
}
