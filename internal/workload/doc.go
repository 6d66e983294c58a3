// Package workload builds the stream of work items a run replays.
//
// A [Plan] names one URL form (a single URL with a method, or a URL list) and
// one termination mode (a request count, or a duration). [Generator.Run] emits
// the plan into a [Publisher] and closes it; closure is the only completion
// signal consumers see.
//
// In count mode items are published back to back. In duration mode one item is
// published per tick until the duration has elapsed, without waiting for
// consumers.
package workload
