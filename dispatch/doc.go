// Serializes outbound calls to a rate-limited platform account.
//
// A [Queue] runs submitted tasks strictly one at a time, in submission order. A task which fails is put back at the head of the queue (ahead of anything submitted later) and retried after a backoff; after each successful task the queue pauses for a random delay drawn from a configured window, so the platform never sees a machine-regular request cadence.
//
// The queue has no global retry cap. Callers bound retries themselves, either by cancelling the context passed to [Queue.Submit], or by returning an error wrapped with [Abandon] from the task.
package dispatch
