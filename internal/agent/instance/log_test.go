// Copyright 2026 fanjia1024
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

package instance

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityLog_KeepsMostRecent(t *testing.T) {
	l := NewActivityLog(50)
	base := time.Unix(1700000000, 0)
	for i := 0; i < 60; i++ {
		l.Append(Entry{Timestamp: base.Add(time.Duration(i) * time.Second), Text: fmt.Sprintf("e%d", i)})
		assert.LessOrEqual(t, l.Len(), 50)
	}
	entries := l.Entries()
	require.Len(t, entries, 50)
	for i, e := range entries {
		assert.Equal(t, fmt.Sprintf("e%d", i+10), e.Text)
		if i > 0 {
			assert.True(t, e.Timestamp.After(entries[i-1].Timestamp))
		}
	}
}

func TestActivityLog_CapacityBounds(t *testing.T) {
	assert.Equal(t, MaxLogCapacity, NewActivityLog(0).Cap())
	assert.Equal(t, MaxLogCapacity, NewActivityLog(500).Cap())
	assert.Equal(t, 3, NewActivityLog(3).Cap())
}

func TestActivityLog_EntriesIsCopy(t *testing.T) {
	l := NewActivityLog(2)
	l.Append(Entry{Text: "a"})
	got := l.Entries()
	got[0].Text = "mutated"
	assert.Equal(t, "a", l.Entries()[0].Text)
}
