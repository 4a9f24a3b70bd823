// Package async provides panic-safe background execution.
//
// SafeGo runs a single detached task. Group runs fire-and-forget tasks that
// shutdown can later wait on, which is how audit writes are kept off the
// request path. WorkerPool and Batch fan work out over a fixed number of
// workers and collect errors.
package async
