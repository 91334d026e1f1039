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

package channel

import (
	"testing"

	"clawlink/pkg/config"

	"github.com/stretchr/testify/assert"
)

func TestCatalog(t *testing.T) {
	c := NewCatalog(config.ChannelsConfig{
		Telegram: config.TelegramConfig{Enabled: true},
		Discord:  config.ChannelToggle{Enabled: true},
	})
	assert.True(t, c.Enabled(Telegram))
	assert.False(t, c.Enabled(Discord), "discord stays inert even when toggled")
	assert.False(t, c.Enabled(WhatsApp))
	assert.False(t, c.Enabled("sms"))

	list := c.List()
	assert.Len(t, list, 3)
	assert.Equal(t, "coming soon", list[1].Note)
}

func TestCatalog_TelegramDisabled(t *testing.T) {
	c := NewCatalog(config.ChannelsConfig{})
	assert.False(t, c.Enabled(Telegram))
}
