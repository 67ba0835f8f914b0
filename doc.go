// Package async provides a uniform, cancellable, cross-platform primitive
// for composing non-blocking operations on file descriptors, sockets,
// message queues, timers, and interrupt sources.
//
// The core abstraction is the [Controller]: a per-thread event
// demultiplexer that a producer thread hands [Operation] values to
// (through a [CommunicationObject]) and that the owning thread drains
// with [Controller.Wait]. Readiness is delivered by a platform backend
// (poll plus a self-pipe on POSIX, WaitForMultipleObjects plus an
// auto-reset event on Windows) that every Controller owns privately;
// there is no reactor shared across Controllers.
//
// Sub-packages implement concrete communication objects on top of this
// core: async/fdconn (sockets and pipes), async/msgexchange (in-process
// rendezvous), async/timer (a process-wide timer thread), and
// async/interrupt (signal / console-break delivery). The stream package
// and httpclient package build on the core independently of each other.
package async
