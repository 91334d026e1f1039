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

package deploy

import (
	"context"
	"testing"
	"time"

	"clawlink/internal/agent/instance"
	"clawlink/internal/agent/scheduler"
	"clawlink/internal/model/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keySet map[llm.ModelKey]bool

func (k keySet) Has(key llm.ModelKey) bool { return k[key] }

type channelSet map[string]bool

func (c channelSet) Enabled(key string) bool { return c[key] }

func newTestService(t *testing.T) (*Service, *instance.StoreMem, *scheduler.TickScheduler) {
	t.Helper()
	store := instance.NewStoreMem()
	ticks := scheduler.NewTickScheduler(scheduler.NewRandomPolicy(1), scheduler.TickSchedulerConfig{})
	svc := NewService(store,
		keySet{llm.ModelGemini: true, llm.ModelClaude: true},
		channelSet{"telegram": true},
		ticks, nil,
		Options{LogCapacity: 50, MessageIncrementMicros: instance.MicrosFromAmount(0.05)},
	)
	return svc, store, ticks
}

func TestDeploy(t *testing.T) {
	svc, store, ticks := newTestService(t)
	snap, err := svc.Deploy(context.Background(), Request{ModelKey: "gemini", Channel: "telegram"})
	require.NoError(t, err)

	inst := snap.Instance
	assert.NotEmpty(t, inst.ID)
	assert.Equal(t, instance.DefaultName(inst.ID), inst.Name)
	assert.Equal(t, instance.StateRunning, inst.State)
	assert.Len(t, snap.Log, 2)
	assert.Equal(t, 1, ticks.Len())

	rec, err := store.Get(context.Background(), inst.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, instance.StateRunning, rec.State)
}

func TestDeploy_CustomName(t *testing.T) {
	svc, _, _ := newTestService(t)
	snap, err := svc.Deploy(context.Background(), Request{Name: "  Sales Bot ", ModelKey: "claude", Channel: "telegram"})
	require.NoError(t, err)
	assert.Equal(t, "Sales Bot", snap.Instance.Name)
}

func TestDeploy_Rejections(t *testing.T) {
	svc, store, _ := newTestService(t)
	_, err := svc.Deploy(context.Background(), Request{ModelKey: "openai", Channel: "telegram"})
	assert.ErrorIs(t, err, ErrInvalidModel)
	_, err = svc.Deploy(context.Background(), Request{ModelKey: "", Channel: "telegram"})
	assert.ErrorIs(t, err, ErrInvalidModel)
	_, err = svc.Deploy(context.Background(), Request{ModelKey: "gemini", Channel: "discord"})
	assert.ErrorIs(t, err, ErrUnsupportedChannel)

	list, err := store.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLifecycleCommands(t *testing.T) {
	svc, store, _ := newTestService(t)
	snap, err := svc.Deploy(context.Background(), Request{ModelKey: "gemini", Channel: "telegram"})
	require.NoError(t, err)
	id := snap.Instance.ID

	snap, err = svc.Pause(id)
	require.NoError(t, err)
	assert.Equal(t, instance.StatePaused, snap.Instance.State)
	rec, _ := store.Get(context.Background(), id)
	assert.Equal(t, instance.StatePaused, rec.State)

	_, err = svc.Pause(id)
	assert.ErrorIs(t, err, instance.ErrInvalidTransition)

	snap, err = svc.Resume(id)
	require.NoError(t, err)
	assert.Equal(t, instance.StateRunning, snap.Instance.State)

	_, err = svc.Start(id)
	assert.ErrorIs(t, err, instance.ErrInvalidTransition)

	_, err = svc.Pause("missing")
	assert.ErrorIs(t, err, instance.ErrInstanceNotFound)
}

func TestReconfigure(t *testing.T) {
	svc, store, _ := newTestService(t)
	snap, err := svc.Deploy(context.Background(), Request{ModelKey: "gemini", Channel: "telegram"})
	require.NoError(t, err)
	id := snap.Instance.ID

	_, err = svc.Reconfigure(id, "openai")
	assert.ErrorIs(t, err, ErrInvalidModel)

	rt, ok := svc.Runtime(id)
	require.True(t, ok)
	require.NoError(t, rt.Fail("Unauthorized", "bad key"))
	_, err = svc.Resume(id)
	assert.ErrorIs(t, err, instance.ErrInvalidTransition)

	snap, err = svc.Reconfigure(id, "claude")
	require.NoError(t, err)
	assert.Equal(t, instance.StateStopped, snap.Instance.State)
	assert.Equal(t, llm.ModelClaude, snap.Instance.ModelKey)
	rec, _ := store.Get(context.Background(), id)
	assert.Equal(t, llm.ModelClaude, rec.ModelKey)

	snap, err = svc.Start(id)
	require.NoError(t, err)
	assert.Equal(t, instance.StateRunning, snap.Instance.State)
}

func TestTerminate(t *testing.T) {
	svc, store, ticks := newTestService(t)
	snap, err := svc.Deploy(context.Background(), Request{ModelKey: "gemini", Channel: "telegram"})
	require.NoError(t, err)
	id := snap.Instance.ID
	rt, _ := svc.Runtime(id)

	require.NoError(t, svc.Terminate(context.Background(), id))
	assert.Equal(t, 0, ticks.Len())
	_, err = svc.Get(id)
	assert.ErrorIs(t, err, instance.ErrInstanceNotFound)
	rec, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.ErrorIs(t, rt.Resume(), instance.ErrInstanceNotFound)

	assert.ErrorIs(t, svc.Terminate(context.Background(), id), instance.ErrInstanceNotFound)
}

func TestListOrderAndFlush(t *testing.T) {
	svc, store, ticks := newTestService(t)
	first, err := svc.Deploy(context.Background(), Request{ModelKey: "gemini", Channel: "telegram"})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := svc.Deploy(context.Background(), Request{ModelKey: "claude", Channel: "telegram"})
	require.NoError(t, err)

	list := svc.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.Instance.ID, list[0].ID)
	assert.Equal(t, first.Instance.ID, list[1].ID)

	for i := 0; i < 30; i++ {
		ticks.TickOnce(time.Now())
	}
	require.NoError(t, svc.Flush(context.Background()))
	rt, _ := svc.Runtime(first.Instance.ID)
	rec, _ := store.Get(context.Background(), first.Instance.ID)
	assert.Equal(t, rt.Instance().Metrics, rec.Metrics)
}

func TestRestore(t *testing.T) {
	store := instance.NewStoreMem()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &instance.AgentInstance{ID: "r1", Name: "one", ModelKey: llm.ModelGemini, Channel: "telegram", State: instance.StatePaused}))
	require.NoError(t, store.Create(ctx, &instance.AgentInstance{ID: "r2", Name: "two", ModelKey: llm.ModelOpenAI, Channel: "telegram", State: instance.StateRunning}))

	ticks := scheduler.NewTickScheduler(scheduler.NewRandomPolicy(1), scheduler.TickSchedulerConfig{})
	svc := NewService(store, keySet{llm.ModelGemini: true}, channelSet{"telegram": true}, ticks, nil, Options{})
	n, err := svc.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, ticks.Len())

	snap, err := svc.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, instance.StatePaused, snap.Instance.State)

	snap, err = svc.Get("r2")
	require.NoError(t, err)
	last := snap.Log[len(snap.Log)-1]
	assert.Equal(t, string(llm.FailureUnknownModel), last.Kind)
}
