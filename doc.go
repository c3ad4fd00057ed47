// Package pipetree orchestrates hierarchies of cooperating worker goroutines
// whose results flow through pipes from child to parent.
//
// A call to Open starts a child goroutine and returns the Pipe that will
// carry its result. The parent reads the child with Read, or waits for
// whichever child finishes first with Select. Children can be grouped with
// EnterScope/ExitScope, asked to wind down early with Truncate, or killed
// outright with Kill. Send starts a side-effecting goroutine with no
// readable result, reclaimed automatically when it finishes; Sync blocks
// until every goroutine started this way has exited.
//
// Cancellation is cooperative: Kill and Truncate only set flags a worker is
// expected to poll (Killed, Truncated). Nothing here preempts a worker that
// never checks them.
package pipetree
