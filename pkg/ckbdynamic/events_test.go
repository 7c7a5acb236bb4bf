package ckbdynamic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBirthEvent_RampsDesiredSizeToTargetOverTEffectTicks(t *testing.T) {
	e := newTestEngine(10, 5)
	ev := newBirthEvent(e, 1, 10, 3)
	c := e.mustCommunity(ev.community)

	require.Equal(t, Growing, c.State())
	require.False(t, c.IsAvailable())

	active := ev.tick(e)
	assert.True(t, active)
	firstRamp := c.DesiredSize()
	assert.Greater(t, firstRamp, 1)
	assert.Less(t, firstRamp, 10)

	active = ev.tick(e)
	assert.True(t, active)

	active = ev.tick(e)
	assert.False(t, active, "the event completes after exactly tEffect ticks")
	assert.Equal(t, 10, c.DesiredSize())
	assert.Equal(t, Stable, c.State())
	assert.True(t, c.IsAvailable())
}

func TestDeathEvent_ShrinksThenDissolvesCommunity(t *testing.T) {
	e := newTestEngine(11, 10)
	c := e.newCommunity(false)
	for i := 0; i < 10; i++ {
		c.AddNode(e, NodeID(i))
	}
	c.setDesiredSize(10)

	ev := newDeathEvent(e, c, 2, 2)
	assert.Equal(t, Shrinking, c.State())

	active := ev.tick(e)
	assert.True(t, active)
	assert.LessOrEqual(t, c.Size(), 10)
	assert.GreaterOrEqual(t, c.Size(), 2)

	active = ev.tick(e)
	assert.False(t, active)
	assert.Equal(t, 0, c.Size())
	assert.False(t, e.allCommunities.Contains(c.ID()), "a dissolved community leaves the arena")
}

func TestSplitEvent_PartitionsMembersBetweenTwoCommunities(t *testing.T) {
	e := newTestEngine(12, 20)
	com := e.newCommunity(false)
	for i := 0; i < 12; i++ {
		com.AddNode(e, NodeID(i))
	}
	com.setDesiredSize(12)

	ev := newSplitEvent(e, com, 8, 4, 4)
	comA := e.mustCommunity(ev.communityA)
	comB := e.mustCommunity(ev.communityB)
	assert.True(t, comA.IsLocked())
	assert.True(t, comB.IsLocked())

	for ev.tick(e) {
	}

	assert.Equal(t, 8, comA.DesiredSize())
	assert.Equal(t, 4, comB.DesiredSize())
	assert.Equal(t, 8, comA.Size())
	assert.Equal(t, 4, comB.Size())
	assert.False(t, comA.IsLocked())
	assert.False(t, comB.IsLocked())

	for i := 0; i < 12; i++ {
		u := NodeID(i)
		assert.NotEqual(t, comA.HasNode(u), comB.HasNode(u), "every original member ends up in exactly one half")
	}
}

func TestMergeEvent_FoldsBIntoAAndDestroysB(t *testing.T) {
	e := newTestEngine(13, 20)
	comA := e.newCommunity(false)
	comB := e.newCommunity(false)
	comA.edgeProb = 0.2
	comB.edgeProb = 0.8
	for i := 0; i < 5; i++ {
		comA.AddNode(e, NodeID(i))
	}
	for i := 5; i < 10; i++ {
		comB.AddNode(e, NodeID(i))
	}

	ev := newMergeEvent(e, comA, comB, 10, 3)
	for ev.tick(e) {
	}

	assert.False(t, e.allCommunities.Contains(comB.ID()), "the absorbed community leaves the arena")
	assert.Equal(t, 10, comA.Size())
	assert.Equal(t, 10, comA.DesiredSize())
	assert.False(t, comA.IsLocked())
	for i := 0; i < 10; i++ {
		assert.True(t, comA.HasNode(NodeID(i)))
	}
}
