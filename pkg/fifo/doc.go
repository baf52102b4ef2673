// SPDX-License-Identifier: MIT
/*
Package fifo provides the buffering primitives that move audio samples and
configuration snapshots between a hardware-clocked real-time goroutine and
the rest of the program.

Every queue serves exactly one producer and one consumer:

  - RingBuffer: bounded circular buffer without synchronisation.
  - BlockingQueue: RingBuffer guarded by a mutex and two condition
    variables; Read and Write wait for data or space and can be cancelled
    per side with SetError.
  - DriftTolerantQueue: never waits. Startup padding, minimum fill and xrun
    counting absorb clock drift between producer and consumer; too many
    xruns in succession stop transmission until both sides restart.
  - BlockSizeAdapter: two queues bridging an outer and an inner block size
    with a fixed delay.
  - HandoffQueue: lock-free pointer queue for publishing immutable
    configuration snapshots to a real-time reader.

Real-time paths (RingBuffer, DriftTolerantQueue, HandoffQueue.Poll) do not
allocate.
*/
package fifo
