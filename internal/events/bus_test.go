package events

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/patleeman/taskfactory/internal/core"
)

func TestEventBus_Subscribe(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	ch := bus.Subscribe()

	event := NewAgentExecutionStatusEvent("ws-1", core.TaskID("task-1"), "running")
	bus.Publish(event)

	select {
	case received := <-ch:
		if received.EventType() != TypeAgentExecutionStatus {
			t.Errorf("expected %s, got %s", TypeAgentExecutionStatus, received.EventType())
		}
		if received.TaskID() != "task-1" {
			t.Errorf("expected task-1, got %s", received.TaskID())
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestEventBus_SubscribeByType(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	moveCh := bus.Subscribe(TypeTaskMoved)
	allCh := bus.Subscribe()

	bus.Publish(NewAgentExecutionStatusEvent("ws-1", core.TaskID("task-1"), "running"))
	bus.Publish(NewTaskMovedEvent("ws-1", core.TaskID("task-1"), core.PhaseReady, core.PhaseExecuting, "dispatch"))

	// allCh should receive both
	select {
	case <-allCh:
	case <-time.After(100 * time.Millisecond):
		t.Error("allCh should receive execution status event")
	}
	select {
	case <-allCh:
	case <-time.After(100 * time.Millisecond):
		t.Error("allCh should receive task moved event")
	}

	// moveCh should only receive the moved event
	select {
	case received := <-moveCh:
		if received.EventType() != TypeTaskMoved {
			t.Errorf("expected task:moved, got %s", received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("moveCh should receive task moved event")
	}
}

func TestEventBus_PriorityNeverDrops(t *testing.T) {
	bus := New(5) // Small buffer
	defer bus.Close()

	priorityCh := bus.SubscribePriority()

	// Saturate with many events
	for i := 0; i < 100; i++ {
		bus.Publish(NewQueueStatusEvent("ws-1", true, 0, 0))
	}

	// Send priority event
	failedEvent := NewBreakerBlockedEvent("ws-1", core.TaskID("task-1"), 0)
	bus.PublishPriority(failedEvent)

	// Priority channel should have the event
	select {
	case received := <-priorityCh:
		if received.EventType() != TypeBreakerBlocked {
			t.Errorf("expected breaker:blocked, got %s", received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("priority event was dropped")
	}
}

func TestEventBus_RingBufferDropsOldest(t *testing.T) {
	bus := New(5)
	defer bus.Close()

	ch := bus.Subscribe()

	// Fill buffer
	for i := 0; i < 10; i++ {
		bus.Publish(NewQueueStatusEvent("ws-1", true, 0, i))
	}

	// Should have dropped some events
	if bus.DroppedCount() == 0 {
		t.Error("expected some events to be dropped")
	}

	// Drain and verify we can still receive
	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			goto done
		}
	}
done:

	if received == 0 {
		t.Error("should have received at least some events")
	}
}

func TestEventBus_ConcurrentPublish(t *testing.T) {
	bus := New(100)
	defer bus.Close()

	ch := bus.Subscribe()

	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				bus.Publish(NewQueueStatusEvent("ws-1", true, 0, j))
			}
		}(i)
	}

	wg.Wait()

	// Some events should have been received (accounting for drops)
	received := 0
drainLoop:
	for {
		select {
		case <-ch:
			received++
		default:
			break drainLoop
		}
	}

	if received == 0 {
		t.Error("should have received some events")
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	ch := bus.Subscribe()
	bus.Unsubscribe(ch)

	// Channel should be closed
	_, ok := <-ch
	if ok {
		t.Error("channel should be closed after unsubscribe")
	}
}

// Task filtering tests

func TestEventBus_SubscribeForTask(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	// Subscribe to task A
	chA := bus.SubscribeForTask("task-a")

	// Subscribe to task B
	chB := bus.SubscribeForTask("task-b")

	// Subscribe to all tasks (empty taskID)
	chAll := bus.Subscribe()

	// Publish event for task A
	eventA := NewAgentExecutionStatusEvent("ws-1", core.TaskID("task-a"), "running")
	bus.Publish(eventA)

	// Publish event for task B
	eventB := NewAgentExecutionStatusEvent("ws-1", core.TaskID("task-b"), "running")
	bus.Publish(eventB)

	// Wait a bit for delivery
	time.Sleep(10 * time.Millisecond)

	// Check channel A received only task A event
	select {
	case e := <-chA:
		if e.TaskID() != "task-a" {
			t.Errorf("chA received wrong task: %s", e.TaskID())
		}
	default:
		t.Error("chA should have received an event")
	}

	select {
	case e := <-chA:
		t.Errorf("chA should not receive task B event, got: %s", e.TaskID())
	default:
		// Expected - no more events
	}

	// Check channel B received only task B event
	select {
	case e := <-chB:
		if e.TaskID() != "task-b" {
			t.Errorf("chB received wrong task: %s", e.TaskID())
		}
	default:
		t.Error("chB should have received an event")
	}

	// Check channel All received both events
	count := 0
	for i := 0; i < 2; i++ {
		select {
		case <-chAll:
			count++
		default:
		}
	}
	if count != 2 {
		t.Errorf("chAll should receive 2 events, got %d", count)
	}
}

func TestEventBus_SubscribeForTaskWithTypes(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	// Subscribe to specific type AND task
	ch := bus.SubscribeForTask("task-a", TypeAgentExecutionStatus)

	// Publish matching event
	event1 := NewAgentExecutionStatusEvent("ws-1", core.TaskID("task-a"), "running")
	bus.Publish(event1)

	// Publish non-matching type (same task)
	event2 := NewAgentThinkingEndEvent("ws-1", core.TaskID("task-a"))
	bus.Publish(event2)

	// Publish non-matching task (same type)
	event3 := NewAgentExecutionStatusEvent("ws-1", core.TaskID("task-b"), "running")
	bus.Publish(event3)

	time.Sleep(10 * time.Millisecond)

	// Should only receive event1
	count := 0
	for {
		select {
		case e := <-ch:
			count++
			if e.TaskID() != "task-a" || e.EventType() != TypeAgentExecutionStatus {
				t.Errorf("received unexpected event: task=%s, type=%s",
					e.TaskID(), e.EventType())
			}
		default:
			goto done
		}
	}
done:

	if count != 1 {
		t.Errorf("expected 1 event, got %d", count)
	}
}

func TestEventBus_TaskFilteringConcurrent(t *testing.T) {
	bus := New(100)
	defer bus.Close()

	const numTasks = 5
	const eventsPerTask = 100

	// Subscribe to each task
	channels := make([]<-chan Event, numTasks)
	for i := 0; i < numTasks; i++ {
		channels[i] = bus.SubscribeForTask(fmt.Sprintf("task-%d", i))
	}

	// Publish events concurrently
	var wg sync.WaitGroup
	for p := 0; p < numTasks; p++ {
		wg.Add(1)
		go func(taskNum int) {
			defer wg.Done()
			taskID := core.TaskID(fmt.Sprintf("task-%d", taskNum))
			for e := 0; e < eventsPerTask; e++ {
				event := NewAgentExecutionStatusEvent("ws-1", taskID, "running")
				bus.Publish(event)
			}
		}(p)
	}

	wg.Wait()
	time.Sleep(50 * time.Millisecond)

	// Check each channel received correct events
	for i := 0; i < numTasks; i++ {
		count := 0
		expectedTask := fmt.Sprintf("task-%d", i)
		for {
			select {
			case e := <-channels[i]:
				count++
				if e.TaskID() != expectedTask {
					t.Errorf("channel %d received event from wrong task: %s",
						i, e.TaskID())
				}
			default:
				goto nextChannel
			}
		}
	nextChannel:
		if count != eventsPerTask {
			t.Errorf("channel %d received %d events, expected %d",
				i, count, eventsPerTask)
		}
	}
}

func TestEventBus_EmptyTaskIDReceivesAll(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	// Empty task ID = receive all
	ch := bus.SubscribeForTask("")

	// Publish events from different tasks
	bus.Publish(NewAgentExecutionStatusEvent("ws-1", core.TaskID("task-a"), "running"))
	bus.Publish(NewAgentExecutionStatusEvent("ws-1", core.TaskID("task-b"), "running"))
	bus.Publish(NewAgentExecutionStatusEvent("ws-1", core.TaskID(""), "running"))

	time.Sleep(10 * time.Millisecond)

	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			goto done
		}
	}
done:

	if count != 3 {
		t.Errorf("expected 3 events, got %d", count)
	}
}

func TestEventBus_ProjectIDMethod(t *testing.T) {
	be := NewBaseEvent(TypeAgentExecutionStatus, "task-1", "ws-test")

	if be.ProjectID() != "ws-test" {
		t.Errorf("expected ProjectID 'ws-test', got '%s'", be.ProjectID())
	}

	// Test with empty workspace ID
	be2 := NewBaseEvent(TypeAgentExecutionStatus, "task-2", "")
	if be2.ProjectID() != "" {
		t.Errorf("expected empty ProjectID, got '%s'", be2.ProjectID())
	}
}

func TestEventBus_SubscribeForTaskWithPriority(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	// Subscribe to priority events for task A
	chA := bus.SubscribeForTaskWithPriority("task-a")

	// Publish priority event for task A
	eventA := NewBreakerBlockedEvent("ws-1", core.TaskID("task-a"), 0)
	bus.PublishPriority(eventA)

	// Publish priority event for task B - should not be received by chA
	eventB := NewBreakerBlockedEvent("ws-1", core.TaskID("task-b"), 0)
	bus.PublishPriority(eventB)

	time.Sleep(10 * time.Millisecond)

	// Check channel A received only task A event
	count := 0
	for {
		select {
		case e := <-chA:
			count++
			if e.TaskID() != "task-a" {
				t.Errorf("chA received wrong task: %s", e.TaskID())
			}
		default:
			goto done
		}
	}
done:

	if count != 1 {
		t.Errorf("expected 1 event, got %d", count)
	}
}

func TestEventBus_SubscribeOnClosedBus(t *testing.T) {
	bus := New(10)
	bus.Close()

	// Subscribe after close should return a closed channel
	ch := bus.SubscribeForTask("task-a")

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("channel should be closed")
		}
	default:
		// Channel is closed, this is expected
	}
}

func TestEventBus_BaseEventLegacy(t *testing.T) {
	// Test the no-workspace constructor
	be := NewBaseEventLegacy(TypeAgentExecutionStatus, "task-1")

	if be.TaskID() != "task-1" {
		t.Errorf("expected TaskID 'task-1', got '%s'", be.TaskID())
	}

	if be.ProjectID() != "" {
		t.Errorf("expected empty ProjectID for legacy event, got '%s'", be.ProjectID())
	}
}
