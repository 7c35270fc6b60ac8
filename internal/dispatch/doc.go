// Package dispatch queues render jobs and runs them on a fixed pool of
// renderers.
//
// # Admission
//
// Submit admits a job only while fewer than MaxQueueDepth jobs are
// outstanding (queued or running and not yet answered). Anything beyond
// that is refused at once with an overloaded error; callers never wait for
// a slot.
//
// # Ordering and deadlines
//
// Jobs start in submission order. A job still queued after QueueTimeout is
// withdrawn and answered with a timeout without ever reaching a renderer.
// A running job gets ExecTimeout: when it overruns, the caller is answered
// with a timeout immediately, and once the renderer returns its output is
// thrown away and the renderer is reset before it takes another job.
//
// # Cancellation
//
// When the caller's context ends, a queued job is withdrawn and a running
// job's result is discarded. Either way its queue slot is released.
package dispatch
