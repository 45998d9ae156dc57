// Timer-driven loops which decide when to run a generate-and-publish cycle.
//
// Each [Stream] is an independent loop with its own delay window and its own persisted last-action timestamp. On every iteration the stream draws a random delay from its window; if more than that delay has passed since the last successful action, the cycle runs. Either way, the next iteration happens after the drawn delay. Because the timestamp is persisted (see [StateStore]), a restarted process does not burst: time since the last real action is always respected.
//
// A cycle runs in its own goroutine. If the timer fires while the previous cycle is still running, that firing is skipped rather than queued. Errors and panics in a cycle are logged, and never stop the loop.
package schedule
