// Package cotask provides a stackful cooperative scheduler and a
// multi-topic publish/subscribe message bus that time-share a single
// logical execution thread.
//
// # Architecture
//
// A [Scheduler] owns a fixed-size table of tasks and a monotonic tick
// counter. Its [Scheduler.Run] method is the scheduler's central dispatch
// loop: at any instant at most one task's code is executing, and a task
// only ever suspends at one of its two yield points, [TaskHandle.Yield] and
// [TaskHandle.Sleep]. A [PubSubManager] is a separate, fixed-capacity
// multi-topic message bus; messages are only ever dispatched to subscribers
// from inside [PubSubManager.ProcessTopic] or [PubSubManager.ProcessAll],
// never from inside [PubSubManager.Publish] itself.
//
// The two are independent and composable: a typical program runs one task
// whose body calls ProcessAll once per iteration, then yields, so that
// message dispatch happens on the same cooperative schedule as every other
// task.
//
// # Thread Safety
//
// Scheduler and PubSubManager are both safe for concurrent use. Add,
// Remove, Publish, Subscribe, and Unsubscribe may all be called from
// outside the scheduler's own goroutine, e.g. from an [Adapter]'s polling
// goroutine or from a test.
//
// # Usage
//
//	sched := cotask.NewScheduler()
//	bus := cotask.NewPubSubManager()
//
//	if _, err := bus.CreateTopic("events"); err != nil {
//	    log.Fatal(err)
//	}
//	bus.Subscribe("events", func(topic string, msg cotask.Message, _ any) {
//	    if n, ok := msg.Value.Number(); ok {
//	        fmt.Println("got", n)
//	    }
//	}, nil)
//
//	sched.Add(func(h *cotask.TaskHandle) {
//	    for i := uint64(0); i < 3; i++ {
//	        bus.Publish("events", cotask.Message{Value: cotask.NumberValue(i)})
//	        bus.ProcessAll()
//	        h.Sleep(1)
//	    }
//	})
//
//	sched.Run()
//
// # Error Types
//
// Every fallible operation returns an [*Error] carrying a [Kind]:
// [InvalidArgument], [ResourceExhausted], or [NotFound]. The one exception
// is [PubSubManager.PollAdapter], which returns ctx.Err() when its context
// is cancelled. [InvariantViolation] is never returned: a detected
// violation is passed to a [RingQ]'s [DebugFailFunc] hook. Sentinel values ([ErrInvalidArgument] and friends)
// support errors.Is-style matching regardless of Op or Message.
package cotask
